// Package session tracks who is logged in to a running shell.
package session

import (
	"errors"

	"github.com/google/uuid"

	"vaxsched/internal/domain"
)

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrWrongRole       = errors.New("logged in with the wrong role")
	ErrAlreadyLoggedIn = errors.New("already logged in")
)

type Identity struct {
	Role     domain.Role
	Username string
}

func (i Identity) Empty() bool {
	return i.Role == domain.RoleNone
}

// Session holds at most one identity at a time. It is not safe for concurrent
// use; one shell owns one session.
type Session struct {
	ID       uuid.UUID
	identity Identity
}

func New() *Session {
	return &Session{ID: uuid.New()}
}

func (s *Session) Identity() Identity {
	return s.identity
}

func (s *Session) Login(role domain.Role, username string) error {
	if !s.identity.Empty() {
		return ErrAlreadyLoggedIn
	}
	if !role.Valid() || username == "" {
		return domain.NewValidationError("invalid identity")
	}
	s.identity = Identity{Role: role, Username: username}
	return nil
}

func (s *Session) Logout() error {
	if s.identity.Empty() {
		return ErrNotLoggedIn
	}
	s.identity = Identity{}
	return nil
}

// Require returns the current identity if it has the given role.
func (s *Session) Require(role domain.Role) (Identity, error) {
	if s.identity.Empty() {
		return Identity{}, ErrNotLoggedIn
	}
	if s.identity.Role != role {
		return Identity{}, ErrWrongRole
	}
	return s.identity, nil
}

func (s *Session) RequireAny() (Identity, error) {
	if s.identity.Empty() {
		return Identity{}, ErrNotLoggedIn
	}
	return s.identity, nil
}
