package store

import (
	"context"

	"vaxsched/internal/domain"
)

// SchedulingStore runs units of work against the scheduling relations. InTx
// is all-or-nothing: if fn returns an error nothing it did is kept.
type SchedulingStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx SchedulingTx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx SchedulingTx) error) error
}

// CredentialRepository stores credentials of both roles; the role of the
// credential selects its namespace.
type CredentialRepository interface {
	CreateCredential(ctx context.Context, cred domain.Credential) error
	GetCredential(ctx context.Context, role domain.Role, username string) (domain.Credential, error)
}
