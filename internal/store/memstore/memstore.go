// Package memstore keeps the scheduler relations in process memory. It backs
// the "memory" store driver and the service tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"vaxsched/internal/domain"
	"vaxsched/internal/store"
)

var errReadOnly = errors.New("memstore: write in read-only transaction")

type state struct {
	credentials  map[domain.Role]map[string]domain.Credential
	slots        []domain.AvailabilitySlot
	lastSlotID   int64
	vaccines     map[string]int
	appointments map[int64]domain.Appointment
	watermark    int64
}

func newState() *state {
	return &state{
		credentials: map[domain.Role]map[string]domain.Credential{
			domain.RolePatient:   {},
			domain.RoleCaregiver: {},
		},
		vaccines:     make(map[string]int),
		appointments: make(map[int64]domain.Appointment),
	}
}

func (s *state) clone() *state {
	c := &state{
		credentials:  make(map[domain.Role]map[string]domain.Credential, len(s.credentials)),
		slots:        append([]domain.AvailabilitySlot(nil), s.slots...),
		lastSlotID:   s.lastSlotID,
		vaccines:     make(map[string]int, len(s.vaccines)),
		appointments: make(map[int64]domain.Appointment, len(s.appointments)),
		watermark:    s.watermark,
	}
	for role, users := range s.credentials {
		m := make(map[string]domain.Credential, len(users))
		for k, v := range users {
			m[k] = v
		}
		c.credentials[role] = m
	}
	for k, v := range s.vaccines {
		c.vaccines[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	return c
}

// Store serializes transactions with a mutex. Each transaction works on a
// copy of the state that replaces the live state only when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &memTx{st: s.st, readOnly: true})
}

func (s *Store) CreateCredential(ctx context.Context, cred domain.Credential) error {
	if !cred.Role.Valid() {
		return errors.New("memstore: credential without role")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.st.credentials[cred.Role]
	if _, ok := users[cred.Username]; ok {
		return store.ErrConflict
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	users[cred.Username] = cred
	return nil
}

func (s *Store) GetCredential(ctx context.Context, role domain.Role, username string) (domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.st.credentials[role][username]
	if !ok {
		return domain.Credential{}, store.ErrNotFound
	}
	return cred, nil
}

type memTx struct {
	st       *state
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) ListCaregivers(ctx context.Context, date time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range t.st.slots {
		if !domain.SameDate(s.Time, date) {
			continue
		}
		if _, ok := seen[s.Username]; ok {
			continue
		}
		seen[s.Username] = struct{}{}
		out = append(out, s.Username)
	}
	sort.Strings(out)
	return out, nil
}

func (t *memTx) PickEarliestAvailable(ctx context.Context, date time.Time) (string, error) {
	names, err := t.ListCaregivers(ctx, date)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", store.ErrNotFound
	}
	return names[0], nil
}

func (t *memTx) HasSlot(ctx context.Context, caregiver string, date time.Time) (bool, error) {
	return t.slotIndex(caregiver, date) >= 0, nil
}

func (t *memTx) InsertSlot(ctx context.Context, caregiver string, date time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.credentials[domain.RoleCaregiver][caregiver]; !ok {
		return store.ErrNotFound
	}
	t.st.lastSlotID++
	t.st.slots = append(t.st.slots, domain.AvailabilitySlot{
		ID:       t.st.lastSlotID,
		Username: caregiver,
		Time:     domain.DateOnly(date),
	})
	return nil
}

func (t *memTx) ConsumeSlot(ctx context.Context, caregiver string, date time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	i := t.slotIndex(caregiver, date)
	if i < 0 {
		return store.ErrNotFound
	}
	t.st.slots = append(t.st.slots[:i:i], t.st.slots[i+1:]...)
	return nil
}

// slotIndex returns the matching slot with the lowest id, or -1.
func (t *memTx) slotIndex(caregiver string, date time.Time) int {
	idx := -1
	for i, s := range t.st.slots {
		if s.Username != caregiver || !domain.SameDate(s.Time, date) {
			continue
		}
		if idx < 0 || s.ID < t.st.slots[idx].ID {
			idx = i
		}
	}
	return idx
}

func (t *memTx) GetVaccine(ctx context.Context, name string) (domain.Vaccine, error) {
	doses, ok := t.st.vaccines[name]
	if !ok {
		return domain.Vaccine{}, store.ErrNotFound
	}
	return domain.Vaccine{Name: name, Doses: doses}, nil
}

func (t *memTx) ListVaccines(ctx context.Context) ([]domain.Vaccine, error) {
	out := make([]domain.Vaccine, 0, len(t.st.vaccines))
	for name, doses := range t.st.vaccines {
		out = append(out, domain.Vaccine{Name: name, Doses: doses})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) CreateVaccine(ctx context.Context, name string, doses int) error {
	if err := t.writable(); err != nil {
		return err
	}
	if doses < 0 {
		return store.ErrInvalidAmount
	}
	if _, ok := t.st.vaccines[name]; ok {
		return store.ErrConflict
	}
	t.st.vaccines[name] = doses
	return nil
}

func (t *memTx) IncreaseDoses(ctx context.Context, name string, n int) error {
	if err := t.writable(); err != nil {
		return err
	}
	if n <= 0 {
		return store.ErrInvalidAmount
	}
	doses, ok := t.st.vaccines[name]
	if !ok {
		return store.ErrNotFound
	}
	t.st.vaccines[name] = doses + n
	return nil
}

func (t *memTx) DecreaseDoses(ctx context.Context, name string, n int) error {
	if err := t.writable(); err != nil {
		return err
	}
	if n <= 0 {
		return store.ErrInvalidAmount
	}
	doses, ok := t.st.vaccines[name]
	if !ok {
		return store.ErrNotFound
	}
	if doses < n {
		return store.ErrInsufficientStock
	}
	t.st.vaccines[name] = doses - n
	return nil
}

func (t *memTx) NextAppointmentID(ctx context.Context) (int64, error) {
	next := t.st.watermark
	for id := range t.st.appointments {
		if id > next {
			next = id
		}
	}
	return next + 1, nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt domain.Appointment) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.appointments[appt.ID]; ok {
		return store.ErrConflict
	}
	if _, ok := t.st.credentials[domain.RolePatient][appt.PatientUsername]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.st.credentials[domain.RoleCaregiver][appt.CaregiverUsername]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.st.vaccines[appt.VaccineName]; !ok {
		return store.ErrNotFound
	}
	appt.Time = domain.DateOnly(appt.Time)
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	t.st.appointments[appt.ID] = appt
	if appt.ID > t.st.watermark {
		t.st.watermark = appt.ID
	}
	return nil
}

func (t *memTx) FindAppointment(ctx context.Context, id int64) (domain.Appointment, error) {
	appt, ok := t.st.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return appt, nil
}

func (t *memTx) DeleteAppointment(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.appointments[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.appointments, id)
	return nil
}

func (t *memTx) ListAppointments(ctx context.Context, username string, role domain.Role) ([]domain.Appointment, error) {
	out := make([]domain.Appointment, 0)
	for _, a := range t.st.appointments {
		switch role {
		case domain.RolePatient:
			if a.PatientUsername != username {
				continue
			}
		case domain.RoleCaregiver:
			if a.CaregiverUsername != username {
				continue
			}
		default:
			return nil, errors.New("memstore: unknown role " + role.String())
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
