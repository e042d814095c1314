package diary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiaryStartsInIntake(t *testing.T) {
	now := time.Now().UTC()
	d := New("PT-1", "", now)
	assert.Equal(t, PhaseIntake, d.Header.CurrentPhase)
	assert.Equal(t, now, d.Header.PhaseEnteredAt)
	assert.False(t, d.Intake.IsComplete())
	assert.ElementsMatch(t, RequiredIntakeFields, d.Intake.GetMissingRequired())
}

func TestIntakeMarkFieldCollectedIsIdempotent(t *testing.T) {
	s := NewIntakeSection()
	s.MarkFieldCollected("name")
	s.MarkFieldCollected("name")
	assert.Equal(t, []string{"name"}, s.FieldsCollected)
	assert.NotContains(t, s.FieldsMissing, "name")
}

func TestIntakeIsCompleteWhenAllFieldsCollected(t *testing.T) {
	s := NewIntakeSection()
	for _, f := range RequiredIntakeFields {
		s.MarkFieldCollected(f)
	}
	assert.True(t, s.IsComplete())
}

func TestSetPhaseStampsOnlyOnChange(t *testing.T) {
	now := time.Now().UTC()
	d := New("PT-1", "", now)
	later := now.Add(time.Hour)
	d.SetPhase(PhaseIntake, later)
	assert.Equal(t, now, d.Header.PhaseEnteredAt, "no phase change must not stamp")

	d.SetPhase(PhaseClinical, later)
	assert.Equal(t, later, d.Header.PhaseEnteredAt)
}

func TestConversationLogBoundedFIFO(t *testing.T) {
	d := New("PT-1", "", time.Now().UTC())
	for i := 0; i < 150; i++ {
		d.AddConversation(ConversationEntry{Message: "m", ChatChannel: ChatPreConsultation})
	}
	assert.Len(t, d.ConversationLog, 100)
}

func TestMonitoringEntriesBoundedFIFO(t *testing.T) {
	var m MonitoringSection
	for i := 0; i < 80; i++ {
		m.AddEntry(MonitoringEntry{Type: "x"})
	}
	assert.Len(t, m.Entries, 50)
}

func TestClinicalSubPhaseHistoryNoDuplicates(t *testing.T) {
	var c ClinicalSection
	c.AdvanceSubPhase(SubPhaseAskingQuestions)
	c.AdvanceSubPhase(SubPhaseAskingQuestions)
	c.AdvanceSubPhase(SubPhaseCollectingDocs)
	assert.Equal(t, []ClinicalSubPhase{SubPhaseAskingQuestions, SubPhaseCollectingDocs}, c.SubPhaseHistory)
}

func TestHelperWithPermissionOnlyReturnsVerified(t *testing.T) {
	r := HelperRegistry{Helpers: []Helper{
		{ID: "h1", Permissions: []string{"send_messages"}, Verified: true},
		{ID: "h2", Permissions: []string{"send_messages"}, Verified: false},
	}}
	got := r.WithPermission("send_messages")
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].ID)
}

func TestGPChannelHasPendingQueries(t *testing.T) {
	var c GPChannel
	assert.False(t, c.HasPendingQueries())
	c.AddQuery(GPQuery{ID: "q1"})
	assert.True(t, c.HasPendingQueries())
}

func TestCloneIsIndependent(t *testing.T) {
	d := New("PT-1", "", time.Now().UTC())
	d.Intake.MarkFieldCollected("name")
	cp := d.Clone()
	cp.Intake.MarkFieldCollected("phone")
	assert.NotContains(t, d.Intake.FieldsCollected, "phone")
	assert.Contains(t, cp.Intake.FieldsCollected, "phone")
}
