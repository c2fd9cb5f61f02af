package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID                int64     `bun:"id,pk"`
	PatientUsername   string    `bun:"patient_username,notnull"`
	CaregiverUsername string    `bun:"caregiver_username,notnull"`
	VaccineName       string    `bun:"vaccine_name,notnull"`
	Time              time.Time `bun:"time,type:date,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Counterpart returns the other party of the appointment as seen by role.
func (a Appointment) Counterpart(role Role) string {
	if role == RoleCaregiver {
		return a.PatientUsername
	}
	return a.CaregiverUsername
}

// AppointmentWatermark records the highest appointment id ever issued so that
// ids of cancelled appointments are never handed out again.
type AppointmentWatermark struct {
	bun.BaseModel `bun:"table:appointment_id_watermark,alias:w"`

	Singleton bool  `bun:"singleton,pk"`
	LastID    int64 `bun:"last_id,notnull"`
}
