package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"

	"vaxsched/internal/domain"
	"vaxsched/internal/store"
)

const (
	defaultMaxAttempts = 5
	retryBaseDelay     = 10 * time.Millisecond
	retryJitterPercent = 50
)

type SchedulingRepo struct {
	db          *bun.DB
	maxAttempts int
}

func NewSchedulingRepo(db *bun.DB, maxAttempts int) *SchedulingRepo {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &SchedulingRepo{db: db, maxAttempts: maxAttempts}
}

type schedulingTx struct {
	tx bun.Tx
}

// InTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// deadlocks restart fn from scratch until maxAttempts is reached.
func (r *SchedulingRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	return retryTx(ctx, r.maxAttempts, func(ctx context.Context) error {
		return r.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, schedulingTx{tx: tx})
		})
	})
}

// View runs fn in a read-only snapshot.
func (r *SchedulingRepo) View(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return r.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, schedulingTx{tx: tx})
	})
}

func retryTx(ctx context.Context, maxAttempts int, attempt func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := retry.NewExponential(retryBaseDelay)
	backoff = retry.WithJitterPercent(retryJitterPercent, backoff)
	backoff = retry.WithMaxRetries(uint64(maxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := attempt(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func dateArg(date time.Time) string {
	return domain.FormatDate(date)
}

func (r schedulingTx) ListCaregivers(ctx context.Context, date time.Time) ([]string, error) {
	var names []string
	err := r.tx.NewSelect().
		Model((*domain.AvailabilitySlot)(nil)).
		ColumnExpr("DISTINCT s.username").
		Where(`s."time" = CAST(? AS date)`, dateArg(date)).
		OrderExpr("s.username ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("list caregivers: %w", err)
	}
	return names, nil
}

func (r schedulingTx) PickEarliestAvailable(ctx context.Context, date time.Time) (string, error) {
	var name string
	err := r.tx.NewSelect().
		Model((*domain.AvailabilitySlot)(nil)).
		ColumnExpr("s.username").
		Where(`s."time" = CAST(? AS date)`, dateArg(date)).
		OrderExpr("s.username ASC").
		Limit(1).
		Scan(ctx, &name)
	if err != nil {
		return "", fmt.Errorf("pick caregiver: %w", mapError(err))
	}
	return name, nil
}

func (r schedulingTx) HasSlot(ctx context.Context, caregiver string, date time.Time) (bool, error) {
	ok, err := r.tx.NewSelect().
		Model((*domain.AvailabilitySlot)(nil)).
		Where("s.username = ?", caregiver).
		Where(`s."time" = CAST(? AS date)`, dateArg(date)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return ok, nil
}

func (r schedulingTx) InsertSlot(ctx context.Context, caregiver string, date time.Time) error {
	m := domain.AvailabilitySlot{Username: caregiver, Time: domain.DateOnly(date)}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return fmt.Errorf("insert slot: %w", mapError(err))
	}
	return nil
}

func (r schedulingTx) ConsumeSlot(ctx context.Context, caregiver string, date time.Time) error {
	one := r.tx.NewSelect().
		Model((*domain.AvailabilitySlot)(nil)).
		ColumnExpr("s.id").
		Where("s.username = ?", caregiver).
		Where(`s."time" = CAST(? AS date)`, dateArg(date)).
		OrderExpr("s.id ASC").
		Limit(1)

	res, err := r.tx.NewDelete().
		Model((*domain.AvailabilitySlot)(nil)).
		Where("s.id = (?)", one).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("consume slot: %w", err)
	}
	return expectAffected(res)
}

func (r schedulingTx) GetVaccine(ctx context.Context, name string) (domain.Vaccine, error) {
	var v domain.Vaccine
	err := r.tx.NewSelect().
		Model(&v).
		Where("v.name = ?", name).
		Scan(ctx)
	if err != nil {
		return domain.Vaccine{}, fmt.Errorf("get vaccine: %w", mapError(err))
	}
	return v, nil
}

func (r schedulingTx) ListVaccines(ctx context.Context) ([]domain.Vaccine, error) {
	var rows []domain.Vaccine
	err := r.tx.NewSelect().
		Model(&rows).
		OrderExpr("v.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vaccines: %w", err)
	}
	return rows, nil
}

func (r schedulingTx) CreateVaccine(ctx context.Context, name string, doses int) error {
	if doses < 0 {
		return store.ErrInvalidAmount
	}
	m := domain.Vaccine{Name: name, Doses: doses}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return fmt.Errorf("create vaccine: %w", mapError(err))
	}
	return nil
}

func (r schedulingTx) IncreaseDoses(ctx context.Context, name string, n int) error {
	if n <= 0 {
		return store.ErrInvalidAmount
	}
	res, err := r.tx.NewUpdate().
		Model((*domain.Vaccine)(nil)).
		Set("doses = doses + ?", n).
		Where("v.name = ?", name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("increase doses: %w", mapError(err))
	}
	return expectAffected(res)
}

func (r schedulingTx) DecreaseDoses(ctx context.Context, name string, n int) error {
	if n <= 0 {
		return store.ErrInvalidAmount
	}
	res, err := r.tx.NewUpdate().
		Model((*domain.Vaccine)(nil)).
		Set("doses = doses - ?", n).
		Where("v.name = ?", name).
		Where("v.doses >= ?", n).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("decrease doses: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	// Nothing matched: either the vaccine is unknown or it is short of doses.
	if _, err := r.GetVaccine(ctx, name); err != nil {
		return err
	}
	return store.ErrInsufficientStock
}

func (r schedulingTx) NextAppointmentID(ctx context.Context) (int64, error) {
	var id int64
	err := r.tx.NewRaw(
		"SELECT GREATEST(" +
			"COALESCE((SELECT MAX(id) FROM appointments), 0), " +
			"COALESCE((SELECT last_id FROM appointment_id_watermark WHERE singleton), 0)" +
			") + 1",
	).Scan(ctx, &id)
	if err != nil {
		return 0, fmt.Errorf("next appointment id: %w", err)
	}
	return id, nil
}

func (r schedulingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) error {
	m := appt
	m.Time = domain.DateOnly(appt.Time)
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return fmt.Errorf("insert appointment: %w", mapError(err))
	}
	_, err := r.tx.NewRaw(
		"UPDATE appointment_id_watermark SET last_id = GREATEST(last_id, ?) WHERE singleton",
		appt.ID,
	).Exec(ctx)
	if err != nil {
		return fmt.Errorf("advance appointment watermark: %w", err)
	}
	return nil
}

func (r schedulingTx) FindAppointment(ctx context.Context, id int64) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("a.id = ?", id).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("find appointment: %w", mapError(err))
	}
	return a, nil
}

func (r schedulingTx) DeleteAppointment(ctx context.Context, id int64) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("a.id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return expectAffected(res)
}

func (r schedulingTx) ListAppointments(ctx context.Context, username string, role domain.Role) ([]domain.Appointment, error) {
	var column string
	switch role {
	case domain.RolePatient:
		column = "patient_username"
	case domain.RoleCaregiver:
		column = "caregiver_username"
	default:
		return nil, fmt.Errorf("list appointments: unsupported role %q", role)
	}

	var rows []domain.Appointment
	err := r.tx.NewSelect().
		Model(&rows).
		Where("a.? = ?", bun.Ident(column), username).
		OrderExpr("a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return rows, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
