// Package cli is the line oriented front end of the scheduler.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"vaxsched/internal/domain"
	"vaxsched/internal/service/accounts"
	"vaxsched/internal/service/scheduling"
	"vaxsched/internal/session"
	"vaxsched/internal/store"
)

const defaultCommandTimeout = 10 * time.Second

type accountsService interface {
	Register(ctx context.Context, role domain.Role, username, password string) error
	Login(ctx context.Context, sess *session.Session, role domain.Role, username, password string) error
	Logout(sess *session.Session) error
}

type schedulingService interface {
	Reserve(ctx context.Context, sess *session.Session, date, vaccine string) (scheduling.Reservation, error)
	Cancel(ctx context.Context, sess *session.Session, appointmentID string) (domain.Appointment, error)
	UploadAvailability(ctx context.Context, sess *session.Session, date string) error
	AddDoses(ctx context.Context, sess *session.Session, vaccine, doses string) (domain.Vaccine, error)
	Search(ctx context.Context, sess *session.Session, date string) (scheduling.Schedule, error)
	ShowAppointments(ctx context.Context, sess *session.Session) ([]domain.Appointment, error)
}

type Options struct {
	CommandTimeout time.Duration
	// Prompt prints "> " before reading each line.
	Prompt bool
}

type Shell struct {
	accounts accountsService
	sched    schedulingService
	sess     *session.Session
	out      io.Writer
	opts     Options
	log      *slog.Logger
	commands map[string]command
}

type command struct {
	usage string
	args  int
	run   func(ctx context.Context, args []string)
}

func NewShell(acc accountsService, sched schedulingService, sess *session.Session, out io.Writer, opts Options, log *slog.Logger) *Shell {
	if log == nil {
		log = slog.Default()
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	s := &Shell{
		accounts: acc,
		sched:    sched,
		sess:     sess,
		out:      out,
		opts:     opts,
		log:      log.With(slog.String("component", "cli"), slog.String("session", sess.ID.String())),
	}
	s.commands = map[string]command{
		"create_patient":            {usage: "create_patient <username> <password>", args: 2, run: s.register(domain.RolePatient)},
		"create_caregiver":          {usage: "create_caregiver <username> <password>", args: 2, run: s.register(domain.RoleCaregiver)},
		"login_patient":             {usage: "login_patient <username> <password>", args: 2, run: s.login(domain.RolePatient)},
		"login_caregiver":           {usage: "login_caregiver <username> <password>", args: 2, run: s.login(domain.RoleCaregiver)},
		"search_caregiver_schedule": {usage: "search_caregiver_schedule <date>", args: 1, run: s.search},
		"reserve":                   {usage: "reserve <date> <vaccine>", args: 2, run: s.reserve},
		"upload_availability":       {usage: "upload_availability <date>", args: 1, run: s.uploadAvailability},
		"cancel":                    {usage: "cancel <appointment_id>", args: 1, run: s.cancel},
		"add_doses":                 {usage: "add_doses <vaccine> <number>", args: 2, run: s.addDoses},
		"show_appointments":         {usage: "show_appointments", args: 0, run: s.showAppointments},
		"logout":                    {usage: "logout", args: 0, run: s.logout},
		"help":                      {usage: "help", args: 0, run: func(context.Context, []string) { s.help() }},
	}
	return s
}

var commandOrder = []string{
	"create_patient",
	"create_caregiver",
	"login_patient",
	"login_caregiver",
	"search_caregiver_schedule",
	"reserve",
	"upload_availability",
	"cancel",
	"add_doses",
	"show_appointments",
	"logout",
	"help",
}

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (s *Shell) println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Shell) help() {
	s.println("*** Please enter one of the following commands ***")
	for _, name := range commandOrder {
		s.println("> " + s.commands[name].usage)
	}
	s.println("> quit")
}

// Run reads commands from in until quit, end of input or ctx is done. No
// command error ends the loop.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.println("Welcome to the COVID-19 Vaccine Reservation Scheduling Application!")
	s.help()

	for {
		if s.opts.Prompt {
			_, _ = fmt.Fprint(s.out, "> ")
		}
		select {
		case <-ctx.Done():
			s.println("Bye!")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			if quit := s.Execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// Execute runs a single command line and reports whether the shell should
// stop.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])
	if name == "quit" || name == "exit" {
		s.println("Bye!")
		return true
	}

	cmd, ok := s.commands[name]
	if !ok {
		s.println("Invalid operation name!")
		return false
	}
	args := fields[1:]
	if len(args) != cmd.args {
		s.println("Please try again")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()

	opID := uuid.NewString()
	start := time.Now()
	s.log.Debug("command started", slog.String("op_id", opID), slog.String("command", name))
	cmd.run(withOpID(ctx, opID), args)
	s.log.Debug("command finished", slog.String("op_id", opID), slog.String("command", name), slog.Duration("elapsed", time.Since(start)))
	return false
}

type opIDKey struct{}

func withOpID(ctx context.Context, opID string) context.Context {
	return context.WithValue(ctx, opIDKey{}, opID)
}

func opIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(opIDKey{}).(string)
	return id
}

// fail prints the message for errors every command shares and logs the rest.
func (s *Shell) fail(ctx context.Context, cmd string, err error) {
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		s.println("Please login first")
		return
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn("command timed out", slog.String("op_id", opIDFrom(ctx)), slog.String("command", cmd))
		s.println("Please try again")
		return
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		s.log.Info("invalid input", slog.String("op_id", opIDFrom(ctx)), slog.String("command", cmd), slog.Any("err", err))
		s.println("Please try again")
		return
	}

	s.log.Error("command failed", slog.String("op_id", opIDFrom(ctx)), slog.String("command", cmd), slog.Any("err", err))
	s.println("Please try again")
}

func (s *Shell) register(role domain.Role) func(ctx context.Context, args []string) {
	return func(ctx context.Context, args []string) {
		username := args[0]
		err := s.accounts.Register(ctx, role, username, args[1])
		var verr *domain.ValidationError
		switch {
		case err == nil:
			s.println("Created user " + username)
		case errors.Is(err, store.ErrConflict):
			s.println("Username taken, try again")
		case errors.As(err, &verr):
			s.println(fmt.Sprintf("Create %s failed: %s", role, verr.Error()))
		default:
			s.fail(ctx, "create_"+string(role), err)
		}
	}
}

func (s *Shell) login(role domain.Role) func(ctx context.Context, args []string) {
	return func(ctx context.Context, args []string) {
		username := args[0]
		err := s.accounts.Login(ctx, s.sess, role, username, args[1])
		var verr *domain.ValidationError
		switch {
		case err == nil:
			s.println("Logged in as " + username)
		case errors.Is(err, session.ErrAlreadyLoggedIn):
			s.println("User already logged in, try again")
		case errors.Is(err, accounts.ErrInvalidCredentials), errors.As(err, &verr):
			s.println("Login failed.")
		default:
			s.fail(ctx, "login_"+string(role), err)
		}
	}
}

func (s *Shell) logout(ctx context.Context, _ []string) {
	if err := s.accounts.Logout(s.sess); err != nil {
		s.fail(ctx, "logout", err)
		return
	}
	s.println("Successfully logged out")
}

func (s *Shell) search(ctx context.Context, args []string) {
	sched, err := s.sched.Search(ctx, s.sess, args[0])
	if err != nil {
		s.fail(ctx, "search_caregiver_schedule", err)
		return
	}

	s.println("Caregivers:")
	if len(sched.Caregivers) == 0 {
		s.println("No caregivers available")
	}
	for _, name := range sched.Caregivers {
		s.println(name)
	}

	s.println("Vaccines:")
	if len(sched.Vaccines) == 0 {
		s.println("No vaccines available")
	}
	for _, v := range sched.Vaccines {
		s.println(v.Name, v.Doses)
	}
}

func (s *Shell) reserve(ctx context.Context, args []string) {
	res, err := s.sched.Reserve(ctx, s.sess, args[0], args[1])
	switch {
	case err == nil:
		s.println(fmt.Sprintf("Appointment ID %d, Caregiver username %s", res.AppointmentID, res.Caregiver))
	case errors.Is(err, session.ErrWrongRole):
		s.println("Please login as a patient")
	case errors.Is(err, scheduling.ErrNoCaregiverAvailable):
		s.println("No caregiver is available")
	case errors.Is(err, scheduling.ErrInsufficientDoses):
		s.println("Not enough available doses")
	default:
		s.fail(ctx, "reserve", err)
	}
}

func (s *Shell) uploadAvailability(ctx context.Context, args []string) {
	err := s.sched.UploadAvailability(ctx, s.sess, args[0])
	var verr *domain.ValidationError
	switch {
	case err == nil:
		s.println("Availability uploaded!")
	case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, session.ErrWrongRole):
		s.println("Please login as a caregiver first!")
	case errors.As(err, &verr):
		s.println("Please enter a valid date!")
	case errors.Is(err, scheduling.ErrSlotExists):
		s.println("Availability already uploaded for " + args[0])
	default:
		s.fail(ctx, "upload_availability", err)
	}
}

func (s *Shell) cancel(ctx context.Context, args []string) {
	appt, err := s.sched.Cancel(ctx, s.sess, args[0])
	var nf *scheduling.AppointmentNotFoundError
	switch {
	case err == nil:
		s.println(fmt.Sprintf("Appointment ID %d has been successfully canceled", appt.ID))
	case errors.As(err, &nf):
		s.println(fmt.Sprintf("Appointment ID %d does not exist", nf.ID))
	case errors.Is(err, scheduling.ErrNotOwner):
		s.println("You can only cancel your own appointments")
	default:
		s.fail(ctx, "cancel", err)
	}
}

func (s *Shell) addDoses(ctx context.Context, args []string) {
	_, err := s.sched.AddDoses(ctx, s.sess, args[0], args[1])
	switch {
	case err == nil:
		s.println("Doses updated!")
	case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, session.ErrWrongRole):
		s.println("Please login as a caregiver first!")
	default:
		s.fail(ctx, "add_doses", err)
	}
}

func (s *Shell) showAppointments(ctx context.Context, _ []string) {
	appts, err := s.sched.ShowAppointments(ctx, s.sess)
	if err != nil {
		s.fail(ctx, "show_appointments", err)
		return
	}
	if len(appts) == 0 {
		s.println("No appointments scheduled")
		return
	}
	role := s.sess.Identity().Role
	for _, a := range appts {
		s.println(a.ID, a.VaccineName, domain.FormatDate(a.Time), a.Counterpart(role))
	}
}
