package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

type fakeSource struct {
	diaries map[string]*diary.Diary
}

func (f *fakeSource) ListMonitoringPatients(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.diaries))
	for id := range f.diaries {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSource) Load(_ context.Context, patientID string) (*diary.Diary, int64, error) {
	return f.diaries[patientID], 1, nil
}

func TestMilestoneFiresAtDueOffset(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.Monitoring.MonitoringActive = true
	appointment := time.Now().UTC().Add(-15 * 24 * time.Hour)
	d.Monitoring.AppointmentDate = &appointment
	src := &fakeSource{diaries: map[string]*diary.Diary{"PT-1": d}}

	var mu sync.Mutex
	var emitted []events.Envelope
	sched := NewScheduler(src, func(e events.Envelope) {
		mu.Lock()
		emitted = append(emitted, e)
		mu.Unlock()
	}, DefaultConfig(), zap.NewNop())

	sched.tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 1)
	assert.Equal(t, events.Heartbeat, emitted[0].EventType)
	assert.Equal(t, "heartbeat_14d", emitted[0].Payload.String("milestone"))
}

func TestMilestoneDoesNotRefireSameEntry(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.Monitoring.MonitoringActive = true
	appointment := time.Now().UTC().Add(-15 * 24 * time.Hour)
	d.Monitoring.AppointmentDate = &appointment
	src := &fakeSource{diaries: map[string]*diary.Diary{"PT-1": d}}

	count := 0
	sched := NewScheduler(src, func(events.Envelope) { count++ }, DefaultConfig(), zap.NewNop())

	sched.tick(context.Background())
	sched.tick(context.Background())

	assert.Equal(t, 1, count)
}

func TestGPReminderFiresAfterAge(t *testing.T) {
	d := diary.New("PT-1", "", time.Now().UTC())
	d.Monitoring.MonitoringActive = true
	d.GPChannel.AddQuery(diary.GPQuery{ID: "q1", Sent: time.Now().UTC().Add(-49 * time.Hour)})
	src := &fakeSource{diaries: map[string]*diary.Diary{"PT-1": d}}

	var emitted []events.Envelope
	sched := NewScheduler(src, func(e events.Envelope) { emitted = append(emitted, e) }, DefaultConfig(), zap.NewNop())

	sched.tick(context.Background())

	require.Len(t, emitted, 1)
	assert.Equal(t, events.GPReminder, emitted[0].EventType)
}
