// Package heartbeat implements the Gateway's milestone and GP-reminder
// scheduler: periodic ticks that synthesize HEARTBEAT and GP_REMINDER
// events for monitoring-phase patients (spec.md §4.7).
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/payload"
)

// DefaultMilestoneDays are the day-offsets (since the appointment date) at
// which a milestone heartbeat fires (spec.md §4.7).
var DefaultMilestoneDays = []int{14, 30, 60, 90}

// DefaultGPReminderAge is how long a pending GP query goes unanswered
// before a reminder fires.
const DefaultGPReminderAge = 48 * time.Hour

// Source is the minimal view of diary state the scheduler needs per
// patient, decoupled from diary.Store so it can be satisfied by a cache.
type Source interface {
	ListMonitoringPatients(ctx context.Context) ([]string, error)
	Load(ctx context.Context, patientID string) (*diary.Diary, int64, error)
}

// Emit is how the scheduler hands a synthesized event back to the router.
type Emit func(events.Envelope)

// registration is the scheduler's per-patient bookkeeping (spec.md §4.6
// "Registration"): {registered_at, appointment_date, last_heartbeat}.
type registration struct {
	RegisteredAt    time.Time
	AppointmentDate *time.Time
	LastHeartbeat   *time.Time
}

// Scheduler fires milestone and GP-reminder events on a tick.
type Scheduler struct {
	source        Source
	emit          Emit
	checkInterval time.Duration
	milestoneDays []int
	gpReminderAge time.Duration
	logger        *zap.Logger

	mu            sync.Mutex
	registrations map[string]*registration
	fired         map[string]map[string]bool // patientID -> entry-type -> fired
	stopCh        chan struct{}
	stopped       chan struct{}
}

// Config configures a Scheduler.
type Config struct {
	CheckInterval time.Duration
	MilestoneDays []int
	GPReminderAge time.Duration
}

// DefaultConfig returns spec.md's defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Hour,
		MilestoneDays: append([]int{}, DefaultMilestoneDays...),
		GPReminderAge: DefaultGPReminderAge,
	}
}

// NewScheduler builds a Scheduler. emit is called (possibly from the
// scheduler's own goroutine) for every synthesized event; the caller is
// responsible for routing it back through the Gateway.
func NewScheduler(source Source, emit Emit, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if len(cfg.MilestoneDays) == 0 {
		cfg.MilestoneDays = append([]int{}, DefaultMilestoneDays...)
	}
	if cfg.GPReminderAge <= 0 {
		cfg.GPReminderAge = DefaultGPReminderAge
	}
	return &Scheduler{
		source:        source,
		emit:          emit,
		checkInterval: cfg.CheckInterval,
		milestoneDays: cfg.MilestoneDays,
		gpReminderAge: cfg.GPReminderAge,
		logger:        logger,
		registrations: make(map[string]*registration),
		fired:         make(map[string]map[string]bool),
	}
}

// Register adds patientID to the scheduler's registration set with an
// optional known appointment date (spec.md §4.6 "Registration"). A
// patient already registered keeps its RegisteredAt but adopts the new
// appointmentDate, since a reschedule can move it after registration.
func (s *Scheduler) Register(patientID string, appointmentDate *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.registrations[patientID]; ok {
		reg.AppointmentDate = appointmentDate
		return
	}
	s.registrations[patientID] = &registration{
		RegisteredAt:    time.Now().UTC(),
		AppointmentDate: appointmentDate,
	}
}

// Unregister drops patientID from the registration set, e.g. once its
// diary reports monitoring is no longer active.
func (s *Scheduler) Unregister(patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registrations, patientID)
	delete(s.fired, patientID)
}

func (s *Scheduler) registeredPatientIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.registrations))
	for id := range s.registrations {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) appointmentDate(patientID string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.registrations[patientID]; ok {
		return reg.AppointmentDate
	}
	return nil
}

func (s *Scheduler) markLastHeartbeat(patientID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.registrations[patientID]; ok {
		reg.LastHeartbeat = &at
	}
}

// Start runs the tick loop in a new goroutine. Call Stop to shut it down.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		// Startup recovery (spec.md §4.6 step 1): the first tick both
		// registers every currently monitoring-active patient and runs
		// the usual checks against them.
		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop signals the tick loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	stopped := s.stopped
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopped
}

// tick implements spec.md §4.6 step 3: every currently monitoring-active
// patient is (re-)registered — keeping the registration set's
// appointment_date current across reschedules — checked for a due
// milestone or GP reminder, and any previously-registered patient that
// dropped out of monitoring is unregistered.
func (s *Scheduler) tick(ctx context.Context) {
	patients, err := s.source.ListMonitoringPatients(ctx)
	if err != nil {
		s.logger.Error("heartbeat: list monitoring patients failed", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	active := make(map[string]bool, len(patients))
	for _, patientID := range patients {
		d, _, err := s.source.Load(ctx, patientID)
		if err != nil {
			s.logger.Warn("heartbeat: load diary failed", zap.String("patient_id", patientID), zap.Error(err))
			continue
		}
		if !d.Monitoring.MonitoringActive {
			continue
		}
		active[patientID] = true
		s.Register(patientID, d.Monitoring.AppointmentDate)
		s.checkMilestones(d, s.appointmentDate(patientID), now)
		s.checkGPReminders(d, now)
	}

	for _, patientID := range s.registeredPatientIDs() {
		if !active[patientID] {
			s.Unregister(patientID)
		}
	}
}

func (s *Scheduler) checkMilestones(d *diary.Diary, appointmentDate *time.Time, now time.Time) {
	if appointmentDate == nil {
		return
	}
	daysSince := int(now.Sub(*appointmentDate).Hours() / 24)

	var due int
	found := false
	for _, day := range s.milestoneDays {
		entryType := fmt.Sprintf("heartbeat_%dd", day)
		if daysSince >= day && !s.hasFired(d.Header.PatientID, entryType) && !d.Monitoring.HasEntryType(entryType) {
			if !found || day < due {
				due = day
				found = true
			}
		}
	}
	if !found {
		return
	}

	entryType := fmt.Sprintf("heartbeat_%dd", due)
	s.markFired(d.Header.PatientID, entryType)
	s.markLastHeartbeat(d.Header.PatientID, now)
	s.emit(events.NewHeartbeat(d.Header.PatientID, due, entryType))
}

// checkGPReminders emits a GP_REMINDER carrying the query's id so the
// GP comms agent, once the event loops back through the normal pipeline,
// can stamp reminder_sent on that exact query and keep it from re-firing
// on the next tick.
func (s *Scheduler) checkGPReminders(d *diary.Diary, now time.Time) {
	for _, q := range d.GPChannel.Queries {
		if q.Status != diary.GPQueryPending {
			continue
		}
		if q.ReminderSent != nil {
			continue
		}
		if now.Sub(q.Sent) <= s.gpReminderAge {
			continue
		}
		s.emit(events.Envelope{
			EventType:  events.GPReminder,
			PatientID:  d.Header.PatientID,
			SenderID:   "heartbeat_scheduler",
			SenderRole: events.RoleSystem,
			Timestamp:  now,
			Payload:    payload.FromMap(map[string]any{"query_id": q.ID}),
		})
	}
}

func (s *Scheduler) hasFired(patientID, entryType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[patientID][entryType]
}

func (s *Scheduler) markFired(patientID, entryType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[patientID] == nil {
		s.fired[patientID] = make(map[string]bool)
	}
	s.fired[patientID][entryType] = true
}
