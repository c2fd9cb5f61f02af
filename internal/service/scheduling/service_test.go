package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaxsched/internal/domain"
	"vaxsched/internal/session"
	"vaxsched/internal/store"
	"vaxsched/internal/store/memstore"
)

type fixture struct {
	st    *memstore.Store
	svc   *Service
	alice *session.Session
	bob   *session.Session
	carl  *session.Session
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	for _, c := range []domain.Credential{
		{Role: domain.RoleCaregiver, Username: "alice"},
		{Role: domain.RoleCaregiver, Username: "dora"},
		{Role: domain.RolePatient, Username: "bob"},
		{Role: domain.RolePatient, Username: "carl"},
	} {
		require.NoError(t, st.CreateCredential(ctx, c))
	}

	login := func(role domain.Role, username string) *session.Session {
		s := session.New()
		require.NoError(t, s.Login(role, username))
		return s
	}
	return &fixture{
		st:    st,
		svc:   NewService(st, opts, nil),
		alice: login(domain.RoleCaregiver, "alice"),
		bob:   login(domain.RolePatient, "bob"),
		carl:  login(domain.RolePatient, "carl"),
	}
}

type snapshot struct {
	Caregivers   []string
	Vaccines     []domain.Vaccine
	Appointments []domain.Appointment
	NextID       int64
}

func (f *fixture) snapshot(t *testing.T, date string) snapshot {
	t.Helper()
	day, err := domain.ParseDate(date)
	require.NoError(t, err)
	var snap snapshot
	err = f.st.View(context.Background(), func(ctx context.Context, tx store.SchedulingTx) error {
		var err error
		if snap.Caregivers, err = tx.ListCaregivers(ctx, day); err != nil {
			return err
		}
		if snap.Vaccines, err = tx.ListVaccines(ctx); err != nil {
			return err
		}
		for _, patient := range []string{"bob", "carl"} {
			rows, err := tx.ListAppointments(ctx, patient, domain.RolePatient)
			if err != nil {
				return err
			}
			snap.Appointments = append(snap.Appointments, rows...)
		}
		snap.NextID, err = tx.NextAppointmentID(ctx)
		return err
	})
	require.NoError(t, err)
	return snap
}

func (f *fixture) doses(t *testing.T, name string) int {
	t.Helper()
	for _, v := range f.snapshot(t, "2025-03-01").Vaccines {
		if v.Name == name {
			return v.Doses
		}
	}
	t.Fatalf("vaccine %q not found", name)
	return 0
}

// seedScenarioA stocks flu with 5 doses and opens alice on 2025-03-01.
func (f *fixture) seedScenarioA(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.AddDoses(ctx, f.alice, "flu", "5")
	require.NoError(t, err)
	require.NoError(t, f.svc.UploadAvailability(ctx, f.alice, "2025-03-01"))
}

func TestScenarioA_ReserveBooksEarliestCaregiver(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedScenarioA(t)

	res, err := f.svc.Reserve(context.Background(), f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.AppointmentID)
	assert.Equal(t, "alice", res.Caregiver)
	assert.Equal(t, "flu", res.Vaccine)

	snap := f.snapshot(t, "2025-03-01")
	assert.Empty(t, snap.Caregivers, "slot consumed")
	assert.Equal(t, 4, f.doses(t, "flu"))
	require.Len(t, snap.Appointments, 1)
	assert.Equal(t, "bob", snap.Appointments[0].PatientUsername)
}

func TestScenarioB_NoCaregiverLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedScenarioA(t)
	before := f.snapshot(t, "2025-04-01")

	_, err := f.svc.Reserve(context.Background(), f.bob, "2025-04-01", "flu")
	assert.ErrorIs(t, err, ErrNoCaregiverAvailable)
	assert.Equal(t, before, f.snapshot(t, "2025-04-01"))
}

func TestScenarioC_InsufficientDosesKeepsSlot(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.AddDoses(ctx, f.alice, "flu", "0")
	require.NoError(t, err)
	require.NoError(t, f.svc.UploadAvailability(ctx, f.alice, "2025-03-01"))
	before := f.snapshot(t, "2025-03-01")

	_, err = f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	assert.ErrorIs(t, err, ErrInsufficientDoses)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = f.svc.Reserve(ctx, f.bob, "2025-03-01", "measles")
	assert.ErrorIs(t, err, ErrInsufficientDoses)

	after := f.snapshot(t, "2025-03-01")
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"alice"}, after.Caregivers)
	assert.Equal(t, 0, f.doses(t, "flu"))
}

func TestScenarioD_CancelUnknownAppointment(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedScenarioA(t)
	before := f.snapshot(t, "2025-03-01")

	_, err := f.svc.Cancel(context.Background(), f.bob, "999")
	var nf *AppointmentNotFoundError
	require.True(t, errors.As(err, &nf), "err = %v", err)
	assert.Equal(t, int64(999), nf.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, before, f.snapshot(t, "2025-03-01"))
}

func TestScenarioE_CancelRestoresAndIDsAreNotReused(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedScenarioA(t)
	ctx := context.Background()
	before := f.snapshot(t, "2025-03-01")

	_, err := f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)

	appt, err := f.svc.Cancel(ctx, f.bob, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), appt.ID)
	assert.Equal(t, "alice", appt.CaregiverUsername)

	after := f.snapshot(t, "2025-03-01")
	assert.Equal(t, before.Caregivers, after.Caregivers)
	assert.Equal(t, before.Vaccines, after.Vaccines)
	assert.Empty(t, after.Appointments)

	res, err := f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.AppointmentID)
	assert.Equal(t, "alice", res.Caregiver)
}

func TestReserve_PicksLexicographicallySmallestCaregiver(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	dora := session.New()
	require.NoError(t, dora.Login(domain.RoleCaregiver, "dora"))

	_, err := f.svc.AddDoses(ctx, dora, "flu", "2")
	require.NoError(t, err)
	require.NoError(t, f.svc.UploadAvailability(ctx, dora, "2025-03-01"))
	require.NoError(t, f.svc.UploadAvailability(ctx, f.alice, "2025-03-01"))

	first, err := f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	second, err := f.svc.Reserve(ctx, f.carl, "2025-03-01", "flu")
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Caregiver)
	assert.Equal(t, "dora", second.Caregiver)
	assert.Equal(t, first.AppointmentID+1, second.AppointmentID)
}

func TestReserve_Preconditions(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedScenarioA(t)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, session.New(), "2025-03-01", "flu")
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)

	_, err = f.svc.Reserve(ctx, f.alice, "2025-03-01", "flu")
	assert.ErrorIs(t, err, session.ErrWrongRole)

	var verr *domain.ValidationError
	_, err = f.svc.Reserve(ctx, f.bob, "2025-02-30", "flu")
	assert.True(t, errors.As(err, &verr), "err = %v", err)
	_, err = f.svc.Reserve(ctx, f.bob, "2025-03-01", " ")
	assert.True(t, errors.As(err, &verr), "err = %v", err)
}

func TestValidationHappensBeforeStoreAccess(t *testing.T) {
	svc := NewService(&fakeSchedulingStore{}, Options{}, nil)
	ctx := context.Background()
	patient := session.New()
	require.NoError(t, patient.Login(domain.RolePatient, "bob"))
	caregiver := session.New()
	require.NoError(t, caregiver.Login(domain.RoleCaregiver, "alice"))

	var verr *domain.ValidationError
	_, err := svc.Reserve(ctx, patient, "03/01/2025", "flu")
	assert.True(t, errors.As(err, &verr))
	_, err = svc.Cancel(ctx, patient, "-1")
	assert.True(t, errors.As(err, &verr))
	_, err = svc.Cancel(ctx, patient, "abc")
	assert.True(t, errors.As(err, &verr))
	assert.True(t, errors.As(svc.UploadAvailability(ctx, caregiver, "2025-13-01"), &verr))
	_, err = svc.AddDoses(ctx, caregiver, "flu", "-3")
	assert.True(t, errors.As(err, &verr))
	_, err = svc.AddDoses(ctx, caregiver, "flu", "ten")
	assert.True(t, errors.As(err, &verr))
	_, err = svc.AddDoses(ctx, caregiver, "flu", "99999999999")
	assert.True(t, errors.As(err, &verr))
	_, err = svc.Search(ctx, patient, "tomorrow")
	assert.True(t, errors.As(err, &verr))
}

func TestCaregiverOperationsRequireCaregiver(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.UploadAvailability(ctx, f.bob, "2025-03-01"), session.ErrWrongRole)
	assert.ErrorIs(t, f.svc.UploadAvailability(ctx, session.New(), "2025-03-01"), session.ErrNotLoggedIn)
	_, err := f.svc.AddDoses(ctx, f.bob, "flu", "1")
	assert.ErrorIs(t, err, session.ErrWrongRole)
	_, err = f.svc.Search(ctx, session.New(), "2025-03-01")
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
	_, err = f.svc.ShowAppointments(ctx, session.New())
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
	_, err = f.svc.Cancel(ctx, session.New(), "1")
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestAddDoses(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	v, err := f.svc.AddDoses(ctx, f.alice, "flu", "3")
	require.NoError(t, err)
	assert.Equal(t, domain.Vaccine{Name: "flu", Doses: 3}, v)

	v, err = f.svc.AddDoses(ctx, f.alice, "flu", "0")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Doses)

	v, err = f.svc.AddDoses(ctx, f.alice, "flu", "4")
	require.NoError(t, err)
	assert.Equal(t, 7, v.Doses)
	assert.Equal(t, 7, f.doses(t, "flu"))
}

func TestUploadAvailability_SetModeRejectsDuplicates(t *testing.T) {
	f := newFixture(t, Options{SlotMode: SlotSet})
	ctx := context.Background()

	require.NoError(t, f.svc.UploadAvailability(ctx, f.alice, "2025-03-01"))
	err := f.svc.UploadAvailability(ctx, f.alice, "2025-03-01")
	assert.ErrorIs(t, err, ErrSlotExists)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCancel_SetModeRestoreIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{SlotMode: SlotSet})
	f.seedScenarioA(t)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	require.NoError(t, f.svc.UploadAvailability(ctx, f.alice, "2025-03-01"))
	_, err = f.svc.Cancel(ctx, f.bob, "1")
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, f.carl, "2025-03-01", "flu")
	assert.ErrorIs(t, err, ErrNoCaregiverAvailable, "only one slot was restored")
}

func TestMultisetModeKeepsDuplicateSlots(t *testing.T) {
	f := newFixture(t, Options{SlotMode: SlotMultiset})
	f.seedScenarioA(t)
	ctx := context.Background()

	require.NoError(t, f.svc.UploadAvailability(ctx, f.alice, "2025-03-01"))
	assert.Equal(t, []string{"alice"}, f.snapshot(t, "2025-03-01").Caregivers)

	_, err := f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, f.carl, "2025-03-01", "flu")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, f.carl, "2025-03-01", "flu")
	assert.ErrorIs(t, err, ErrNoCaregiverAvailable)
}

func TestCancel_AnyPolicyLetsAnyoneCancel(t *testing.T) {
	f := newFixture(t, Options{CancelPolicy: CancelAny})
	f.seedScenarioA(t)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.carl, "1")
	require.NoError(t, err)
}

func TestCancel_OwnerPolicy(t *testing.T) {
	f := newFixture(t, Options{CancelPolicy: CancelOwner})
	f.seedScenarioA(t)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, f.bob, "2025-03-01", "flu")
	require.NoError(t, err)
	before := f.snapshot(t, "2025-03-01")

	_, err = f.svc.Cancel(ctx, f.carl, "1")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, before, f.snapshot(t, "2025-03-01"))

	_, err = f.svc.Cancel(ctx, f.alice, "1")
	require.NoError(t, err)
}

func TestSearchAndShowAppointments(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedScenarioA(t)
	ctx := context.Background()
	_, err := f.svc.AddDoses(ctx, f.alice, "covid", "2")
	require.NoError(t, err)

	sched, err := f.svc.Search(ctx, f.bob, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, sched.Caregivers)
	assert.Equal(t, []domain.Vaccine{{Name: "covid", Doses: 2}, {Name: "flu", Doses: 5}}, sched.Vaccines)

	_, err = f.svc.Reserve(ctx, f.bob, "2025-03-01", "covid")
	require.NoError(t, err)

	mine, err := f.svc.ShowAppointments(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0].Counterpart(domain.RolePatient))

	theirs, err := f.svc.ShowAppointments(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "bob", theirs[0].Counterpart(domain.RoleCaregiver))

	none, err := f.svc.ShowAppointments(ctx, f.carl)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseOptions(t *testing.T) {
	p, err := ParseCancelPolicy("")
	require.NoError(t, err)
	assert.Equal(t, CancelAny, p)
	p, err = ParseCancelPolicy("Owner")
	require.NoError(t, err)
	assert.Equal(t, CancelOwner, p)
	_, err = ParseCancelPolicy("admin")
	assert.Error(t, err)

	m, err := ParseSlotMode("")
	require.NoError(t, err)
	assert.Equal(t, SlotSet, m)
	m, err = ParseSlotMode("multiset")
	require.NoError(t, err)
	assert.Equal(t, SlotMultiset, m)
	_, err = ParseSlotMode("bag")
	assert.Error(t, err)
}
