package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"vaxsched/internal/auth"
	"vaxsched/internal/domain"
	"vaxsched/internal/session"
	"vaxsched/internal/store"
)

// ErrInvalidCredentials is returned for an unknown username and for a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

type Service struct {
	repo store.CredentialRepository
	log  *slog.Logger
}

func NewService(repo store.CredentialRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With(slog.String("component", "accounts"))}
}

func validateUsername(username string) error {
	if username == "" {
		return domain.NewValidationError("username is required")
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return domain.NewValidationError("username must not contain whitespace")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, role domain.Role, username, password string) error {
	if !role.Valid() {
		return domain.NewValidationError("unknown role")
	}
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}

	salt, hash, err := auth.Hash(password)
	if err != nil {
		return err
	}
	err = s.repo.CreateCredential(ctx, domain.Credential{
		Role:     role,
		Username: username,
		Salt:     salt,
		Hash:     hash,
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", role, err)
	}
	s.log.Info("account created", slog.String("role", role.String()), slog.String("username", username))
	return nil
}

func (s *Service) Login(ctx context.Context, sess *session.Session, role domain.Role, username, password string) error {
	if !sess.Identity().Empty() {
		return session.ErrAlreadyLoggedIn
	}
	if !role.Valid() {
		return domain.NewValidationError("unknown role")
	}
	if err := validateUsername(username); err != nil {
		return err
	}

	cred, err := s.repo.GetCredential(ctx, role, username)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("login %s: %w", role, err)
	}
	if !auth.Verify(password, cred.Salt, cred.Hash) {
		return ErrInvalidCredentials
	}

	if err := sess.Login(role, username); err != nil {
		return err
	}
	s.log.Info("logged in", slog.String("session", sess.ID.String()), slog.String("role", role.String()), slog.String("username", username))
	return nil
}

func (s *Service) Logout(sess *session.Session) error {
	id := sess.Identity()
	if err := sess.Logout(); err != nil {
		return err
	}
	s.log.Info("logged out", slog.String("session", sess.ID.String()), slog.String("username", id.Username))
	return nil
}
