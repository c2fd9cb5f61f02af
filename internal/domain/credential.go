package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Role string

const (
	RoleNone      Role = ""
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleCaregiver
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

// Table is the relation holding credentials of the role. Patients and
// caregivers live in separate namespaces, so the same username may exist in
// both.
func (r Role) Table() string {
	switch r {
	case RolePatient:
		return "patients"
	case RoleCaregiver:
		return "caregivers"
	default:
		return ""
	}
}

// Credential is stored in the table returned by Role.Table; queries must set
// the table explicitly with ModelTableExpr.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:c"`

	Role      Role      `bun:"-"`
	Username  string    `bun:"username,pk"`
	Salt      []byte    `bun:"salt,type:bytea,notnull"`
	Hash      []byte    `bun:"hash,type:bytea,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (c *Credential) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}
