package scheduling

import (
	"context"
	"errors"
	"time"

	"vaxsched/internal/domain"
	"vaxsched/internal/store"
)

type fakeSchedulingStore struct {
	inTxFn func(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error
	viewFn func(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error
}

func (f *fakeSchedulingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	if f.inTxFn == nil {
		panic("unexpected call to InTx")
	}
	return f.inTxFn(ctx, fn)
}

func (f *fakeSchedulingStore) View(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	if f.viewFn == nil {
		panic("unexpected call to View")
	}
	return f.viewFn(ctx, fn)
}

var errInjected = errors.New("injected failure")

// faultyStore runs transactions against an inner store but fails the named
// ledger operation, after the operations before it have already been applied.
type faultyStore struct {
	inner  store.SchedulingStore
	failOn string
}

func (f *faultyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	return f.inner.InTx(ctx, func(ctx context.Context, tx store.SchedulingTx) error {
		return fn(ctx, &faultyTx{SchedulingTx: tx, failOn: f.failOn})
	})
}

func (f *faultyStore) View(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	return f.inner.View(ctx, fn)
}

type faultyTx struct {
	store.SchedulingTx
	failOn string
}

func (t *faultyTx) NextAppointmentID(ctx context.Context) (int64, error) {
	if t.failOn == "NextAppointmentID" {
		return 0, errInjected
	}
	return t.SchedulingTx.NextAppointmentID(ctx)
}

func (t *faultyTx) InsertAppointment(ctx context.Context, appt domain.Appointment) error {
	if t.failOn == "InsertAppointment" {
		return errInjected
	}
	return t.SchedulingTx.InsertAppointment(ctx, appt)
}

func (t *faultyTx) DeleteAppointment(ctx context.Context, id int64) error {
	if err := t.SchedulingTx.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	if t.failOn == "DeleteAppointment" {
		return errInjected
	}
	return nil
}

func (t *faultyTx) DecreaseDoses(ctx context.Context, name string, n int) error {
	if err := t.SchedulingTx.DecreaseDoses(ctx, name, n); err != nil {
		return err
	}
	if t.failOn == "DecreaseDoses" {
		return errInjected
	}
	return nil
}

func (t *faultyTx) IncreaseDoses(ctx context.Context, name string, n int) error {
	if err := t.SchedulingTx.IncreaseDoses(ctx, name, n); err != nil {
		return err
	}
	if t.failOn == "IncreaseDoses" {
		return errInjected
	}
	return nil
}

func (t *faultyTx) ConsumeSlot(ctx context.Context, caregiver string, date time.Time) error {
	if err := t.SchedulingTx.ConsumeSlot(ctx, caregiver, date); err != nil {
		return err
	}
	if t.failOn == "ConsumeSlot" {
		return errInjected
	}
	return nil
}

func (t *faultyTx) InsertSlot(ctx context.Context, caregiver string, date time.Time) error {
	if err := t.SchedulingTx.InsertSlot(ctx, caregiver, date); err != nil {
		return err
	}
	if t.failOn == "InsertSlot" {
		return errInjected
	}
	return nil
}
