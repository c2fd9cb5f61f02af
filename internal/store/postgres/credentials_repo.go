package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"vaxsched/internal/domain"
)

type CredentialRepo struct {
	db *bun.DB
}

func NewCredentialRepo(db *bun.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

func (r *CredentialRepo) CreateCredential(ctx context.Context, cred domain.Credential) error {
	table := cred.Role.Table()
	if table == "" {
		return fmt.Errorf("create credential: unsupported role %q", cred.Role)
	}
	m := cred
	_, err := r.db.NewInsert().
		Model(&m).
		ModelTableExpr("?", bun.Ident(table)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create %s: %w", cred.Role, mapError(err))
	}
	return nil
}

func (r *CredentialRepo) GetCredential(ctx context.Context, role domain.Role, username string) (domain.Credential, error) {
	table := role.Table()
	if table == "" {
		return domain.Credential{}, fmt.Errorf("get credential: unsupported role %q", role)
	}
	var c domain.Credential
	err := r.db.NewSelect().
		Model(&c).
		ModelTableExpr("? AS c", bun.Ident(table)).
		Where("c.username = ?", username).
		Scan(ctx)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get %s: %w", role, mapError(err))
	}
	c.Role = role
	return c, nil
}
