package scheduling

import (
	"errors"
	"fmt"

	"vaxsched/internal/store"
)

var (
	ErrNoCaregiverAvailable = errors.New("no caregiver is available")
	ErrInsufficientDoses    = fmt.Errorf("not enough available doses: %w", store.ErrInsufficientStock)
	ErrSlotExists           = fmt.Errorf("availability already uploaded: %w", store.ErrConflict)
	ErrNotOwner             = errors.New("appointment belongs to someone else")
)

type AppointmentNotFoundError struct {
	ID int64
}

func (e *AppointmentNotFoundError) Error() string {
	return fmt.Sprintf("appointment %d does not exist", e.ID)
}

func (e *AppointmentNotFoundError) Unwrap() error {
	return store.ErrNotFound
}
