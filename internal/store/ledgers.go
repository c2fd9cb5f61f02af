package store

import (
	"context"
	"time"

	"vaxsched/internal/domain"
)

// AvailabilityLedger is the set of open (caregiver, date) slots.
type AvailabilityLedger interface {
	// ListCaregivers returns every caregiver with an open slot on date, in
	// ascending order and without duplicates.
	ListCaregivers(ctx context.Context, date time.Time) ([]string, error)
	// PickEarliestAvailable returns the lexicographically smallest caregiver
	// with an open slot on date, or ErrNotFound.
	PickEarliestAvailable(ctx context.Context, date time.Time) (string, error)
	HasSlot(ctx context.Context, caregiver string, date time.Time) (bool, error)
	InsertSlot(ctx context.Context, caregiver string, date time.Time) error
	// ConsumeSlot removes exactly one matching slot, or returns ErrNotFound.
	ConsumeSlot(ctx context.Context, caregiver string, date time.Time) error
}

type VaccineInventory interface {
	GetVaccine(ctx context.Context, name string) (domain.Vaccine, error)
	ListVaccines(ctx context.Context) ([]domain.Vaccine, error)
	CreateVaccine(ctx context.Context, name string, doses int) error
	IncreaseDoses(ctx context.Context, name string, n int) error
	// DecreaseDoses fails with ErrInsufficientStock rather than letting the
	// count go negative.
	DecreaseDoses(ctx context.Context, name string, n int) error
}

type AppointmentLedger interface {
	// NextAppointmentID must be called in the transaction that inserts the
	// appointment.
	NextAppointmentID(ctx context.Context) (int64, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) error
	FindAppointment(ctx context.Context, id int64) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
	ListAppointments(ctx context.Context, username string, role domain.Role) ([]domain.Appointment, error)
}

// SchedulingTx exposes the three relations inside one transaction.
type SchedulingTx interface {
	AvailabilityLedger
	VaccineInventory
	AppointmentLedger
}
