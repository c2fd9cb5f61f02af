package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"vaxsched/internal/domain"
	"vaxsched/internal/session"
	"vaxsched/internal/store"
)

type Service struct {
	store store.SchedulingStore
	opts  Options
	log   *slog.Logger
}

func NewService(st store.SchedulingStore, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: st,
		opts:  opts.withDefaults(),
		log:   log.With(slog.String("component", "scheduling")),
	}
}

type Reservation struct {
	AppointmentID int64
	Caregiver     string
	Vaccine       string
	Date          time.Time
}

type Schedule struct {
	Caregivers []string
	Vaccines   []domain.Vaccine
}

func requireName(name, field string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.NewValidationError(field + " is required")
	}
	return name, nil
}

// Reserve books the earliest available caregiver on date and takes one dose
// of vaccine. Either every effect is applied or none is.
func (s *Service) Reserve(ctx context.Context, sess *session.Session, date, vaccine string) (Reservation, error) {
	ident, err := sess.Require(domain.RolePatient)
	if err != nil {
		return Reservation{}, err
	}
	day, err := domain.ParseDate(date)
	if err != nil {
		return Reservation{}, err
	}
	vaccine, err = requireName(vaccine, "vaccine")
	if err != nil {
		return Reservation{}, err
	}

	var out Reservation
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		caregiver, err := tx.PickEarliestAvailable(ctx, day)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoCaregiverAvailable
		}
		if err != nil {
			return err
		}

		v, err := tx.GetVaccine(ctx, vaccine)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInsufficientDoses
		}
		if err != nil {
			return err
		}
		if v.Doses <= 0 {
			return ErrInsufficientDoses
		}

		id, err := tx.NextAppointmentID(ctx)
		if err != nil {
			return err
		}
		appt := domain.Appointment{
			ID:                id,
			PatientUsername:   ident.Username,
			CaregiverUsername: caregiver,
			VaccineName:       vaccine,
			Time:              day,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if err := tx.DecreaseDoses(ctx, vaccine, 1); err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				return ErrInsufficientDoses
			}
			return err
		}
		if err := tx.ConsumeSlot(ctx, caregiver, day); err != nil {
			return err
		}

		out = Reservation{AppointmentID: id, Caregiver: caregiver, Vaccine: vaccine, Date: day}
		return nil
	})
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve: %w", err)
	}

	s.log.Info("appointment reserved",
		slog.String("session", sess.ID.String()),
		slog.Int64("appointment_id", out.AppointmentID),
		slog.String("patient", ident.Username),
		slog.String("caregiver", out.Caregiver),
		slog.String("vaccine", out.Vaccine),
		slog.String("date", domain.FormatDate(day)),
	)
	return out, nil
}

// Cancel removes the appointment and gives back its slot and dose.
func (s *Service) Cancel(ctx context.Context, sess *session.Session, appointmentID string) (domain.Appointment, error) {
	ident, err := sess.RequireAny()
	if err != nil {
		return domain.Appointment{}, err
	}
	id, err := domain.ParseCount(appointmentID, "appointment id")
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		appt, err := tx.FindAppointment(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return &AppointmentNotFoundError{ID: id}
		}
		if err != nil {
			return err
		}
		if s.opts.CancelPolicy == CancelOwner && !owns(ident, appt) {
			return ErrNotOwner
		}

		if err := tx.DeleteAppointment(ctx, id); err != nil {
			return err
		}
		if err := s.restoreSlot(ctx, tx, appt.CaregiverUsername, appt.Time); err != nil {
			return err
		}
		if err := tx.IncreaseDoses(ctx, appt.VaccineName, 1); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		out = appt
		return nil
	})
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("cancel: %w", err)
	}

	s.log.Info("appointment cancelled",
		slog.String("session", sess.ID.String()),
		slog.Int64("appointment_id", out.ID),
		slog.String("by", ident.Username),
	)
	return out, nil
}

func owns(ident session.Identity, appt domain.Appointment) bool {
	switch ident.Role {
	case domain.RolePatient:
		return appt.PatientUsername == ident.Username
	case domain.RoleCaregiver:
		return appt.CaregiverUsername == ident.Username
	default:
		return false
	}
}

func (s *Service) restoreSlot(ctx context.Context, tx store.SchedulingTx, caregiver string, day time.Time) error {
	if s.opts.SlotMode == SlotSet {
		exists, err := tx.HasSlot(ctx, caregiver, day)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	return tx.InsertSlot(ctx, caregiver, day)
}

func (s *Service) UploadAvailability(ctx context.Context, sess *session.Session, date string) error {
	ident, err := sess.Require(domain.RoleCaregiver)
	if err != nil {
		return err
	}
	day, err := domain.ParseDate(date)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		if s.opts.SlotMode == SlotSet {
			exists, err := tx.HasSlot(ctx, ident.Username, day)
			if err != nil {
				return err
			}
			if exists {
				return ErrSlotExists
			}
		}
		return tx.InsertSlot(ctx, ident.Username, day)
	})
	if err != nil {
		return fmt.Errorf("upload availability: %w", err)
	}

	s.log.Info("availability uploaded",
		slog.String("session", sess.ID.String()),
		slog.String("caregiver", ident.Username),
		slog.String("date", domain.FormatDate(day)),
	)
	return nil
}

// AddDoses creates the vaccine on first use, otherwise increases its stock.
func (s *Service) AddDoses(ctx context.Context, sess *session.Session, vaccine, doses string) (domain.Vaccine, error) {
	ident, err := sess.Require(domain.RoleCaregiver)
	if err != nil {
		return domain.Vaccine{}, err
	}
	vaccine, err = requireName(vaccine, "vaccine")
	if err != nil {
		return domain.Vaccine{}, err
	}
	n64, err := domain.ParseCount(doses, "doses")
	if err != nil {
		return domain.Vaccine{}, err
	}
	if n64 > math.MaxInt32 {
		return domain.Vaccine{}, domain.NewValidationError("doses is out of range")
	}
	n := int(n64)

	var out domain.Vaccine
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		v, err := tx.GetVaccine(ctx, vaccine)
		if errors.Is(err, store.ErrNotFound) {
			out = domain.Vaccine{Name: vaccine, Doses: n}
			return tx.CreateVaccine(ctx, vaccine, n)
		}
		if err != nil {
			return err
		}
		if v.Doses > math.MaxInt32-n {
			return domain.NewValidationError("doses is out of range")
		}
		if n > 0 {
			if err := tx.IncreaseDoses(ctx, vaccine, n); err != nil {
				return err
			}
		}
		out = domain.Vaccine{Name: vaccine, Doses: v.Doses + n}
		return nil
	})
	if err != nil {
		return domain.Vaccine{}, fmt.Errorf("add doses: %w", err)
	}

	s.log.Info("doses added",
		slog.String("session", sess.ID.String()),
		slog.String("caregiver", ident.Username),
		slog.String("vaccine", vaccine),
		slog.Int("added", n),
		slog.Int("doses", out.Doses),
	)
	return out, nil
}

// Search lists the caregivers free on date together with the vaccine stock.
func (s *Service) Search(ctx context.Context, sess *session.Session, date string) (Schedule, error) {
	if _, err := sess.RequireAny(); err != nil {
		return Schedule{}, err
	}
	day, err := domain.ParseDate(date)
	if err != nil {
		return Schedule{}, err
	}

	var out Schedule
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.View(gctx, func(ctx context.Context, tx store.SchedulingTx) error {
			names, err := tx.ListCaregivers(ctx, day)
			out.Caregivers = names
			return err
		})
	})
	g.Go(func() error {
		return s.store.View(gctx, func(ctx context.Context, tx store.SchedulingTx) error {
			vaccines, err := tx.ListVaccines(ctx)
			out.Vaccines = vaccines
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return Schedule{}, fmt.Errorf("search: %w", err)
	}
	return out, nil
}

// ShowAppointments lists the bookings of the logged in user, oldest first.
func (s *Service) ShowAppointments(ctx context.Context, sess *session.Session) ([]domain.Appointment, error) {
	ident, err := sess.RequireAny()
	if err != nil {
		return nil, err
	}

	var out []domain.Appointment
	err = s.store.View(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		rows, err := tx.ListAppointments(ctx, ident.Username, ident.Role)
		out = rows
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("show appointments: %w", err)
	}
	return out, nil
}
