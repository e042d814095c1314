package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/payload"
)

func TestIntakeAgentHandsOffWhenComplete(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	for _, f := range diary.RequiredIntakeFields[:len(diary.RequiredIntakeFields)-1] {
		d.Intake.MarkFieldCollected(f)
	}

	last := diary.RequiredIntakeFields[len(diary.RequiredIntakeFields)-1]
	event := events.Envelope{
		PatientID: "PT-1",
		EventType: events.UserMessage,
		Payload:   payload.FromMap(map[string]any{last: "value"}),
	}

	result, err := IntakeAgent{}.Process(event, d)
	require.NoError(t, err)
	assert.Equal(t, diary.PhaseClinical, result.UpdatedDiary.Header.CurrentPhase)
	require.Len(t, result.EmittedEvents, 1)
	assert.Equal(t, events.IntakeComplete, result.EmittedEvents[0].EventType)
}

func TestBookingAgentConfirmsAndHandsOff(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.SetPhase(diary.PhaseBooking, time.Now().UTC())

	event := events.Envelope{
		PatientID: "PT-1",
		Payload:   payload.FromMap(map[string]any{"slot_id": "SLOT-1"}),
	}

	result, err := BookingAgent{}.Process(event, d)
	require.NoError(t, err)
	assert.True(t, result.UpdatedDiary.Booking.Confirmed)
	assert.Equal(t, diary.PhaseMonitoring, result.UpdatedDiary.Header.CurrentPhase)
	require.Len(t, result.EmittedEvents, 1)
}

func TestMonitoringAgentRecordsHeartbeat(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	event := events.NewHeartbeat("PT-1", 14, "heartbeat_14d")

	result, err := MonitoringAgent{}.Process(event, d)
	require.NoError(t, err)
	require.Len(t, result.UpdatedDiary.Monitoring.Entries, 1)
	assert.Equal(t, "heartbeat_14d", result.UpdatedDiary.Monitoring.Entries[0].Type)
}

func TestMonitoringAgentForceCompletesStalledAssessment(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.SetPhase(diary.PhaseMonitoring, time.Now().UTC())
	d.Monitoring.DeteriorationAssessment.Active = true
	d.Monitoring.DeteriorationAssessment.Started = time.Now().UTC().Add(-49 * time.Hour)

	event := events.NewHeartbeat("PT-1", 14, "heartbeat_14d")
	result, err := MonitoringAgent{}.Process(event, d)
	require.NoError(t, err)

	assessment := result.UpdatedDiary.Monitoring.DeteriorationAssessment
	assert.True(t, assessment.AssessmentComplete)
	require.NotNil(t, assessment.Severity)
	assert.Equal(t, diary.SeverityModerate, *assessment.Severity)
	assert.True(t, result.UpdatedDiary.Monitoring.HasEntryType("assessment_timeout"))
	require.Len(t, result.EmittedEvents, 1)
	assert.Equal(t, events.DeteriorationAlert, result.EmittedEvents[0].EventType)
	require.Len(t, result.Responses, 1)
	assert.Contains(t, result.Responses[0].Message, "escalating")
}

func TestMonitoringAgentDoesNotRefireCompletedAssessment(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.SetPhase(diary.PhaseMonitoring, time.Now().UTC())
	d.Monitoring.DeteriorationAssessment.Active = true
	d.Monitoring.DeteriorationAssessment.AssessmentComplete = true
	d.Monitoring.DeteriorationAssessment.Started = time.Now().UTC().Add(-49 * time.Hour)

	event := events.NewHeartbeat("PT-1", 14, "heartbeat_14d")
	result, err := MonitoringAgent{}.Process(event, d)
	require.NoError(t, err)
	assert.Empty(t, result.EmittedEvents)
}

func TestMonitoringAgentNudgesStalePhase(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.Header.PhaseEnteredAt = time.Now().UTC().Add(-73 * time.Hour)

	event := events.NewHeartbeat("PT-1", 14, "heartbeat_14d")
	result, err := MonitoringAgent{}.Process(event, d)
	require.NoError(t, err)

	assert.True(t, result.UpdatedDiary.Monitoring.HasEntryType("phase_stale_intake"))
	assert.Contains(t, result.UpdatedDiary.Monitoring.AlertsFired, "phase_stale_intake")
	require.Len(t, result.Responses, 1)
}

func TestMonitoringAgentDoesNotRenudgeStalePhase(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.Header.PhaseEnteredAt = time.Now().UTC().Add(-73 * time.Hour)
	d.Monitoring.AddEntry(diary.MonitoringEntry{Type: "phase_stale_intake", Timestamp: time.Now().UTC()})

	event := events.NewHeartbeat("PT-1", 14, "heartbeat_14d")
	result, err := MonitoringAgent{}.Process(event, d)
	require.NoError(t, err)
	assert.Equal(t, "heartbeat_14d", result.UpdatedDiary.Monitoring.Entries[len(result.UpdatedDiary.Monitoring.Entries)-1].Type)
}

func TestClinicalAgentRejectsDuplicateDocument(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.SetPhase(diary.PhaseClinical, time.Now().UTC())
	d.Clinical.Documents = append(d.Clinical.Documents, diary.ClinicalDocument{Name: "bloods.pdf", ContentHash: "hash-1"})

	event := events.Envelope{
		PatientID: "PT-1",
		EventType: events.DocumentUploaded,
		Payload:   payload.FromMap(map[string]any{"name": "bloods.pdf", "content_hash": "hash-1"}),
	}

	result, err := ClinicalAgent{}.Process(event, d)
	require.NoError(t, err)
	assert.Len(t, result.UpdatedDiary.Clinical.Documents, 1)
	require.Len(t, result.Responses, 1)
	assert.Contains(t, result.Responses[0].Message, "already received")
}

func TestClinicalAgentAcceptsNewDocument(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.SetPhase(diary.PhaseClinical, time.Now().UTC())

	event := events.Envelope{
		PatientID: "PT-1",
		EventType: events.DocumentUploaded,
		Payload:   payload.FromMap(map[string]any{"name": "bloods.pdf", "content_hash": "hash-1"}),
	}

	result, err := ClinicalAgent{}.Process(event, d)
	require.NoError(t, err)
	require.Len(t, result.UpdatedDiary.Clinical.Documents, 1)
	assert.Equal(t, "hash-1", result.UpdatedDiary.Clinical.Documents[0].ContentHash)
}

func TestGPCommsAgentStampsReminderSent(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.GPChannel.AddQuery(diary.GPQuery{ID: "q1", Sent: time.Now().UTC().Add(-49 * time.Hour)})

	event := events.Envelope{
		PatientID: "PT-1",
		EventType: events.GPReminder,
		Payload:   payload.FromMap(map[string]any{"query_id": "q1"}),
	}

	result, err := GPCommsAgent{}.Process(event, d)
	require.NoError(t, err)
	require.NotNil(t, result.UpdatedDiary.GPChannel.Queries[0].ReminderSent)
}
