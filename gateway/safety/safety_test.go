package safety

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncateLeavesShortInputAlone(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello"))
}

func TestTruncateCapsAtMax(t *testing.T) {
	long := strings.Repeat("a", MaxMessageLength+500)
	got := Truncate(long)
	assert.Len(t, []rune(got), MaxMessageLength)
}

func TestTruncateForLogCapsAt200(t *testing.T) {
	long := strings.Repeat("b", 500)
	got := TruncateForLog(long)
	assert.Len(t, []rune(got), MaxOutboundLogLength)
}

func TestCrossPhaseTargetsFindsClinicalKeyword(t *testing.T) {
	targets := CrossPhaseTargets("I've been having bad headaches and dizzy spells", "booking")
	assert.Contains(t, targets, "clinical")
}

func TestCrossPhaseTargetsNeverSelfTargets(t *testing.T) {
	targets := CrossPhaseTargets("I'm allergic to penicillin", "clinical")
	assert.NotContains(t, targets, "clinical")
}

func TestCrossPhaseTargetsFindsIntakeKeyword(t *testing.T) {
	targets := CrossPhaseTargets("my new phone number is 555-1234", "clinical")
	assert.Contains(t, targets, "intake")
}

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)
	now := time.Now()
	assert.True(t, rl.Allow("PT-1", now))
	assert.True(t, rl.Allow("PT-1", now))
	assert.True(t, rl.Allow("PT-1", now))
	assert.False(t, rl.Allow("PT-1", now))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	now := time.Now()
	assert.True(t, rl.Allow("PT-1", now))
	assert.False(t, rl.Allow("PT-1", now.Add(30*time.Second)))
	assert.True(t, rl.Allow("PT-1", now.Add(90*time.Second)))
}

func TestRateLimiterIsolatedPerPatient(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	now := time.Now()
	assert.True(t, rl.Allow("PT-1", now))
	assert.True(t, rl.Allow("PT-2", now))
}

func TestIsPhaseStale(t *testing.T) {
	now := time.Now()
	assert.True(t, IsPhaseStale("booking", now.Add(-49*time.Hour), now))
	assert.False(t, IsPhaseStale("booking", now.Add(-1*time.Hour), now))
	assert.False(t, IsPhaseStale("monitoring", now.Add(-1000*time.Hour), now))
}

func TestIsAssessmentStalled(t *testing.T) {
	now := time.Now()
	assert.True(t, IsAssessmentStalled(now.Add(-49*time.Hour), now))
	assert.False(t, IsAssessmentStalled(now.Add(-1*time.Hour), now))
}
