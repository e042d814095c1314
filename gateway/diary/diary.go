// Package diary implements the PatientDiary data model (spec.md §3): the
// single per-patient aggregate document that every agent reads and
// writes, grouped into sub-sections with their lifecycle helpers and
// bounded-list invariants.
package diary

import "time"

// Phase is the top-level state of a patient's journey.
type Phase string

const (
	PhaseIntake     Phase = "intake"
	PhaseClinical   Phase = "clinical"
	PhaseBooking    Phase = "booking"
	PhaseMonitoring Phase = "monitoring"
	PhaseClosed     Phase = "closed"
)

// RiskLevel is the patient's current clinical risk classification.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ClinicalSubPhase tracks progress within the clinical phase.
type ClinicalSubPhase string

const (
	SubPhaseNotStarted        ClinicalSubPhase = "not_started"
	SubPhaseAnalyzingReferral ClinicalSubPhase = "analyzing_referral"
	SubPhaseAskingQuestions   ClinicalSubPhase = "asking_questions"
	SubPhaseCollectingDocs    ClinicalSubPhase = "collecting_documents"
	SubPhaseScoringRisk       ClinicalSubPhase = "scoring_risk"
	SubPhaseComplete          ClinicalSubPhase = "complete"
)

const (
	maxMonitoringEntries  = 50
	maxConversationLog    = 100
)

// Header carries the diary's top-level identity and phase state.
type Header struct {
	PatientID       string    `json:"patient_id"`
	CurrentPhase    Phase     `json:"current_phase"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Created         time.Time `json:"created"`
	LastUpdated     time.Time `json:"last_updated"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
	PhaseEnteredAt  time.Time `json:"phase_entered_at"`
}

// RequiredIntakeFields is the minimum field set for IntakeSection.IsComplete.
var RequiredIntakeFields = []string{"name", "date_of_birth", "phone", "address", "nhs_number", "contact_preference"}

// IntakeSection tracks demographic collection.
type IntakeSection struct {
	Name               string   `json:"name,omitempty"`
	DateOfBirth        string   `json:"date_of_birth,omitempty"`
	Phone              string   `json:"phone,omitempty"`
	Email              string   `json:"email,omitempty"`
	Address             string   `json:"address,omitempty"`
	NHSNumber          string   `json:"nhs_number,omitempty"`
	ContactPreference  string   `json:"contact_preference,omitempty"`
	FieldsCollected    []string `json:"fields_collected"`
	FieldsMissing      []string `json:"fields_missing"`
}

// NewIntakeSection returns an IntakeSection with all required fields
// pending collection.
func NewIntakeSection() IntakeSection {
	missing := make([]string, len(RequiredIntakeFields))
	copy(missing, RequiredIntakeFields)
	return IntakeSection{
		FieldsCollected: []string{},
		FieldsMissing:   missing,
	}
}

// MarkFieldCollected moves field from FieldsMissing to FieldsCollected
// (idempotent — re-marking an already-collected field is a no-op).
func (s *IntakeSection) MarkFieldCollected(field string) {
	for _, f := range s.FieldsCollected {
		if f == field {
			return
		}
	}
	kept := s.FieldsMissing[:0:0]
	for _, f := range s.FieldsMissing {
		if f != field {
			kept = append(kept, f)
		}
	}
	s.FieldsMissing = kept
	s.FieldsCollected = append(s.FieldsCollected, field)
}

// GetMissingRequired returns the required fields not yet collected.
func (s *IntakeSection) GetMissingRequired() []string {
	out := make([]string, 0, len(s.FieldsMissing))
	out = append(out, s.FieldsMissing...)
	return out
}

// IsComplete reports whether every required field has been collected.
func (s *IntakeSection) IsComplete() bool {
	return len(s.GetMissingRequired()) == 0
}

// Helper is a registered person with delegated access to a patient's diary.
type Helper struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Relationship string   `json:"relationship,omitempty"`
	Channel      string   `json:"channel,omitempty"`
	Contact      string   `json:"contact,omitempty"`
	Permissions  []string `json:"permissions"`
	Verified     bool     `json:"verified"`
}

// HelperRegistry manages the set of helpers for one patient.
type HelperRegistry struct {
	Helpers []Helper `json:"helpers"`
}

// Add registers a new (unverified) helper.
func (r *HelperRegistry) Add(h Helper) {
	r.Helpers = append(r.Helpers, h)
}

// Verify marks the helper with the given id as verified.
func (r *HelperRegistry) Verify(id string) bool {
	for i := range r.Helpers {
		if r.Helpers[i].ID == id {
			r.Helpers[i].Verified = true
			return true
		}
	}
	return false
}

// LookupByID returns the helper with the given id, if any.
func (r *HelperRegistry) LookupByID(id string) (Helper, bool) {
	for _, h := range r.Helpers {
		if h.ID == id {
			return h, true
		}
	}
	return Helper{}, false
}

// LookupByContact returns the helper with the given contact string, if any.
func (r *HelperRegistry) LookupByContact(contact string) (Helper, bool) {
	for _, h := range r.Helpers {
		if h.Contact == contact {
			return h, true
		}
	}
	return Helper{}, false
}

// WithPermission returns verified helpers holding the named permission.
func (r *HelperRegistry) WithPermission(permission string) []Helper {
	out := []Helper{}
	for _, h := range r.Helpers {
		if !h.Verified {
			continue
		}
		for _, p := range h.Permissions {
			if p == permission || p == "full_access" {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// Remove deletes the helper with the given id.
func (r *HelperRegistry) Remove(id string) {
	kept := r.Helpers[:0:0]
	for _, h := range r.Helpers {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	r.Helpers = kept
}

// GPQueryStatus is the lifecycle state of a query sent to a GP.
type GPQueryStatus string

const (
	GPQueryPending      GPQueryStatus = "pending"
	GPQueryResponded    GPQueryStatus = "responded"
	GPQueryNonResponsive GPQueryStatus = "non_responsive"
)

// GPQuery is a single outbound question sent to a patient's GP.
type GPQuery struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	Sent         time.Time     `json:"sent"`
	ReminderSent *time.Time    `json:"reminder_sent,omitempty"`
	Status       GPQueryStatus `json:"status"`
	Received     *time.Time    `json:"received,omitempty"`
	Attachments  []string      `json:"attachments"`
}

// GPChannel tracks GP identity and the query history for one patient.
type GPChannel struct {
	GPName  string    `json:"gp_name,omitempty"`
	GPEmail string    `json:"gp_email,omitempty"`
	Queries []GPQuery `json:"queries"`
}

// AddQuery appends a new pending query.
func (c *GPChannel) AddQuery(q GPQuery) {
	if q.Status == "" {
		q.Status = GPQueryPending
	}
	c.Queries = append(c.Queries, q)
}

// HasPendingQueries reports whether any query is still pending.
func (c *GPChannel) HasPendingQueries() bool {
	for _, q := range c.Queries {
		if q.Status == GPQueryPending {
			return true
		}
	}
	return false
}

// PendingQueries returns every query still awaiting a response.
func (c *GPChannel) PendingQueries() []GPQuery {
	out := []GPQuery{}
	for _, q := range c.Queries {
		if q.Status == GPQueryPending {
			out = append(out, q)
		}
	}
	return out
}

// ClinicalQuestion is one question posed during clinical assessment.
type ClinicalQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Category string `json:"category,omitempty"`
}

// ClinicalDocument is an uploaded document tracked for dedup purposes.
type ClinicalDocument struct {
	Name        string `json:"name"`
	ContentHash string `json:"content_hash,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// ClinicalSection tracks the clinical assessment phase.
type ClinicalSection struct {
	ChiefComplaint    string             `json:"chief_complaint,omitempty"`
	Histories         []string           `json:"histories"`
	Medications       []string           `json:"medications"`
	Allergies         []string           `json:"allergies"`
	RedFlags          []string           `json:"red_flags"`
	Questions         []ClinicalQuestion `json:"questions"`
	Documents         []ClinicalDocument `json:"documents"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	RiskReasoning     string             `json:"risk_reasoning,omitempty"`
	SubPhase          ClinicalSubPhase   `json:"sub_phase"`
	SubPhaseHistory   []ClinicalSubPhase `json:"sub_phase_history"`
	BackwardLoopCount int                `json:"backward_loop_count"`
}

// AdvanceSubPhase sets SubPhase to next and appends next to
// SubPhaseHistory iff it isn't already in it (an ordered set: no
// duplicates, first-insertion order kept).
func (c *ClinicalSection) AdvanceSubPhase(next ClinicalSubPhase) {
	c.SubPhase = next
	for _, p := range c.SubPhaseHistory {
		if p == next {
			return
		}
	}
	c.SubPhaseHistory = append(c.SubPhaseHistory, next)
}

// HasDocumentHash reports whether a document with the given content hash
// has already been received.
func (c *ClinicalSection) HasDocumentHash(hash string) bool {
	if hash == "" {
		return false
	}
	for _, d := range c.Documents {
		if d.ContentHash == hash {
			return true
		}
	}
	return false
}

// SlotOption is an offered appointment slot.
type SlotOption struct {
	SlotID string     `json:"slot_id"`
	Start  time.Time  `json:"start"`
	HoldID *string    `json:"hold_id,omitempty"`
}

// BookingSection tracks appointment scheduling state.
type BookingSection struct {
	EligibilityWindowDays int          `json:"eligibility_window_days"`
	OfferedSlots          []SlotOption `json:"offered_slots"`
	RejectedSlots         []SlotOption `json:"rejected_slots"`
	SelectedSlot          *SlotOption  `json:"selected_slot,omitempty"`
	BookingID             string       `json:"booking_id,omitempty"`
	Instructions          string       `json:"instructions,omitempty"`
	Confirmed             bool         `json:"confirmed"`
	CancelledBookings     []string     `json:"cancelled_bookings"`
}

// DeteriorationQuestion is one question in an active deterioration
// assessment interview.
type DeteriorationQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Category string `json:"category,omitempty"`
}

// DeteriorationSeverity classifies the outcome of an assessment.
type DeteriorationSeverity string

const (
	SeverityMild      DeteriorationSeverity = "mild"
	SeverityModerate  DeteriorationSeverity = "moderate"
	SeverityServere   DeteriorationSeverity = "severe"
	SeverityEmergency DeteriorationSeverity = "emergency"
)

// DeteriorationAssessment is an interactive post-appointment safety check.
type DeteriorationAssessment struct {
	Active             bool                    `json:"active"`
	Questions          []DeteriorationQuestion `json:"questions"`
	AssessmentComplete bool                    `json:"assessment_complete"`
	Severity           *DeteriorationSeverity  `json:"severity,omitempty"`
	Recommendation     string                  `json:"recommendation,omitempty"`
	Reasoning          string                  `json:"reasoning,omitempty"`
	Started            time.Time               `json:"started"`
}

// ScheduledQuestion is a pre-planned monitoring check-in question.
type ScheduledQuestion struct {
	DayOffset int    `json:"day_offset"`
	Question  string `json:"question"`
}

// CommunicationPlan is the risk-stratified monitoring schedule.
type CommunicationPlan struct {
	RiskBand           string              `json:"risk_band,omitempty"`
	ScheduledQuestions []ScheduledQuestion `json:"scheduled_questions"`
}

// MonitoringEntry is one logged monitoring event (heartbeat fire, alert,
// lab reading, staleness nudge, etc).
type MonitoringEntry struct {
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MonitoringSection tracks post-appointment patient monitoring.
type MonitoringSection struct {
	MonitoringActive       bool                     `json:"monitoring_active"`
	Baseline               map[string]float64       `json:"baseline,omitempty"`
	Entries                []MonitoringEntry        `json:"entries"`
	AlertsFired            []string                 `json:"alerts_fired"`
	NextScheduledCheck     *time.Time               `json:"next_scheduled_check,omitempty"`
	AppointmentDate        *time.Time               `json:"appointment_date,omitempty"`
	CommunicationPlan      CommunicationPlan        `json:"communication_plan"`
	DeteriorationAssessment DeteriorationAssessment `json:"deterioration_assessment"`
}

// AddEntry appends e, evicting the oldest entry once the cap is exceeded.
func (m *MonitoringSection) AddEntry(e MonitoringEntry) {
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxMonitoringEntries {
		m.Entries = m.Entries[len(m.Entries)-maxMonitoringEntries:]
	}
}

// HasEntryType reports whether an entry of the given type already exists.
func (m *MonitoringSection) HasEntryType(entryType string) bool {
	for _, e := range m.Entries {
		if e.Type == entryType {
			return true
		}
	}
	return false
}

// CrossPhaseState is an active interactive hand-off awaiting a follow-up
// response from the patient.
type CrossPhaseState struct {
	Active            bool       `json:"active"`
	TargetAgent       string     `json:"target_agent,omitempty"`
	PendingPhase      Phase      `json:"pending_phase,omitempty"`
	FollowUpQuestion  string     `json:"follow_up_question,omitempty"`
	AwaitingResponse  bool       `json:"awaiting_response"`
	Started           *time.Time `json:"started,omitempty"`
}

// ChatChannel is the logical conversation-log partition, independent of
// the transport channel.
type ChatChannel string

const (
	ChatPreConsultation ChatChannel = "pre_consultation"
	ChatMonitoring      ChatChannel = "monitoring"
)

// Direction is the flow of a conversation log entry.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ConversationEntry is one logged inbound or outbound message.
type ConversationEntry struct {
	Direction   Direction   `json:"direction"`
	Channel     string      `json:"channel,omitempty"`
	Message     string      `json:"message"`
	Timestamp   time.Time   `json:"timestamp"`
	ChatChannel ChatChannel `json:"chat_channel"`
}

// CrossPhaseExtraction is one audit-trail entry for cross-phase content
// routing.
type CrossPhaseExtraction struct {
	TargetAgent string    `json:"target_agent"`
	FromPhase   Phase     `json:"from_phase"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// Diary is the root per-patient document; the only aggregate that
// crosses agent boundaries.
type Diary struct {
	Header                 Header                 `json:"header"`
	Intake                  IntakeSection          `json:"intake"`
	HelperRegistry          HelperRegistry         `json:"helper_registry"`
	GPChannel               GPChannel              `json:"gp_channel"`
	Clinical                ClinicalSection        `json:"clinical"`
	Booking                 BookingSection         `json:"booking"`
	Monitoring              MonitoringSection      `json:"monitoring"`
	ConversationLog         []ConversationEntry    `json:"conversation_log"`
	CrossPhaseExtractions   []CrossPhaseExtraction `json:"cross_phase_extractions"`
	CrossPhaseState         CrossPhaseState        `json:"cross_phase_state"`
}

// New creates a fresh diary for patientID, entering the intake phase.
func New(patientID string, correlationID string, now time.Time) *Diary {
	return &Diary{
		Header: Header{
			PatientID:      patientID,
			CurrentPhase:   PhaseIntake,
			RiskLevel:      RiskNone,
			Created:        now,
			LastUpdated:    now,
			CorrelationID:  correlationID,
			PhaseEnteredAt: now,
		},
		Intake:          NewIntakeSection(),
		HelperRegistry:  HelperRegistry{Helpers: []Helper{}},
		GPChannel:       GPChannel{Queries: []GPQuery{}},
		Clinical: ClinicalSection{
			Histories: []string{}, Medications: []string{}, Allergies: []string{},
			RedFlags: []string{}, Questions: []ClinicalQuestion{}, Documents: []ClinicalDocument{},
			RiskLevel: RiskNone, SubPhase: SubPhaseNotStarted, SubPhaseHistory: []ClinicalSubPhase{},
		},
		Booking: BookingSection{
			OfferedSlots: []SlotOption{}, RejectedSlots: []SlotOption{}, CancelledBookings: []string{},
		},
		Monitoring: MonitoringSection{
			Entries: []MonitoringEntry{}, AlertsFired: []string{},
			CommunicationPlan: CommunicationPlan{ScheduledQuestions: []ScheduledQuestion{}},
		},
		ConversationLog:       []ConversationEntry{},
		CrossPhaseExtractions: []CrossPhaseExtraction{},
	}
}

// Touch bumps LastUpdated to now. Callers must ensure monotonicity across
// successful saves for a given patient (spec.md §3 invariant).
func (d *Diary) Touch(now time.Time) {
	if now.After(d.Header.LastUpdated) {
		d.Header.LastUpdated = now
	}
}

// SetPhase transitions to phase, stamping PhaseEnteredAt iff it actually
// changed (spec.md §3/§8 property 6).
func (d *Diary) SetPhase(phase Phase, now time.Time) {
	if d.Header.CurrentPhase == phase {
		return
	}
	d.Header.CurrentPhase = phase
	d.Header.PhaseEnteredAt = now
}

// AddConversation appends an entry, evicting the oldest once the cap is
// exceeded.
func (d *Diary) AddConversation(e ConversationEntry) {
	d.ConversationLog = append(d.ConversationLog, e)
	if len(d.ConversationLog) > maxConversationLog {
		d.ConversationLog = d.ConversationLog[len(d.ConversationLog)-maxConversationLog:]
	}
}

// Conversation returns entries matching chatChannel, or all entries when
// chatChannel is empty.
func (d *Diary) Conversation(chatChannel ChatChannel) []ConversationEntry {
	if chatChannel == "" {
		return d.ConversationLog
	}
	out := []ConversationEntry{}
	for _, e := range d.ConversationLog {
		if e.ChatChannel == chatChannel {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a copy of d with each of its lists copied, used by the
// cache and by process_event to avoid mutating a shared reference across
// retries. Maps, pointer fields and slices inside list elements (e.g.
// Monitoring.Baseline, Helper.Permissions) are shared with d.
func (d *Diary) Clone() *Diary {
	cp := *d
	cp.Intake.FieldsCollected = append([]string{}, d.Intake.FieldsCollected...)
	cp.Intake.FieldsMissing = append([]string{}, d.Intake.FieldsMissing...)
	cp.HelperRegistry.Helpers = append([]Helper{}, d.HelperRegistry.Helpers...)
	cp.GPChannel.Queries = append([]GPQuery{}, d.GPChannel.Queries...)
	cp.Clinical.Histories = append([]string{}, d.Clinical.Histories...)
	cp.Clinical.Medications = append([]string{}, d.Clinical.Medications...)
	cp.Clinical.Allergies = append([]string{}, d.Clinical.Allergies...)
	cp.Clinical.RedFlags = append([]string{}, d.Clinical.RedFlags...)
	cp.Clinical.Questions = append([]ClinicalQuestion{}, d.Clinical.Questions...)
	cp.Clinical.Documents = append([]ClinicalDocument{}, d.Clinical.Documents...)
	cp.Clinical.SubPhaseHistory = append([]ClinicalSubPhase{}, d.Clinical.SubPhaseHistory...)
	cp.Booking.OfferedSlots = append([]SlotOption{}, d.Booking.OfferedSlots...)
	cp.Booking.RejectedSlots = append([]SlotOption{}, d.Booking.RejectedSlots...)
	cp.Booking.CancelledBookings = append([]string{}, d.Booking.CancelledBookings...)
	cp.Monitoring.Entries = append([]MonitoringEntry{}, d.Monitoring.Entries...)
	cp.Monitoring.AlertsFired = append([]string{}, d.Monitoring.AlertsFired...)
	cp.Monitoring.CommunicationPlan.ScheduledQuestions = append([]ScheduledQuestion{}, d.Monitoring.CommunicationPlan.ScheduledQuestions...)
	cp.Monitoring.DeteriorationAssessment.Questions = append([]DeteriorationQuestion{}, d.Monitoring.DeteriorationAssessment.Questions...)
	cp.ConversationLog = append([]ConversationEntry{}, d.ConversationLog...)
	cp.CrossPhaseExtractions = append([]CrossPhaseExtraction{}, d.CrossPhaseExtractions...)
	return &cp
}
