// Package safety implements the Gateway's input-safety and pacing
// subsystem: sliding-window rate limiting, input truncation, cross-phase
// keyword detection, document dedup, and phase/assessment staleness
// checks (spec.md §4.2, §4.8 "Safety Subsystem").
package safety

import (
	"strings"
	"sync"
	"time"
)

// MaxMessageLength is the inbound truncation bound (spec.md §4.2 step 10).
const MaxMessageLength = 10000

// Truncate trims s to MaxMessageLength runes, leaving it untouched if
// already within bounds.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageLength {
		return s
	}
	return string(r[:MaxMessageLength])
}

// MaxOutboundLogLength is the cap applied to outbound messages before they
// are written to the conversation log (spec.md §4.2 step 13).
const MaxOutboundLogLength = 200

// TruncateForLog trims s to MaxOutboundLogLength runes for conversation
// log storage; the full message is still dispatched to the channel.
func TruncateForLog(s string) string {
	r := []rune(s)
	if len(r) <= MaxOutboundLogLength {
		return s
	}
	return string(r[:MaxOutboundLogLength])
}

// clinicalKeywords triggers cross-phase routing toward the clinical agent
// from any non-clinical phase (spec.md §4.8).
var clinicalKeywords = []string{
	"allerg", "medication", "medicine", "taking", "prescribed", "symptom",
	"pain", "hurts", "bleeding", "dizzy", "nausea", "vomit", "fever",
	"swelling", "rash", "breathing", "diagnosed", "condition", "surgery",
	"operation", "side effect", "reaction", "intolerant",
}

// intakeKeywords triggers cross-phase routing toward the intake agent from
// any non-intake phase.
var intakeKeywords = []string{
	"next of kin", "next-of-kin", "emergency contact", "my address",
	"moved to", "new phone", "new email", "my gp", "gp is", "changed my name",
	"nhs number",
}

// CrossPhaseTargets reports which agent phases text's content plausibly
// belongs to, excluding currentPhase (a phase never targets itself).
func CrossPhaseTargets(text string, currentPhase string) []string {
	lower := strings.ToLower(text)
	var targets []string
	if currentPhase != "clinical" && containsAny(lower, clinicalKeywords) {
		targets = append(targets, "clinical")
	}
	if currentPhase != "intake" && containsAny(lower, intakeKeywords) {
		targets = append(targets, "intake")
	}
	return targets
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// RateLimitWindow and RateLimitMaxMessages implement the USER_MESSAGE
// sliding-window limit (spec.md §4.2 step 3); exempt whenever the event is
// part of a recursive hand-off chain (chain_depth > 0).
const (
	RateLimitWindow       = 60 * time.Second
	RateLimitMaxMessages  = 15
)

// RateLimiter is an in-process sliding-window limiter keyed by patient id.
type RateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	arrivals map[string][]time.Time
}

// NewRateLimiter returns a limiter with the given window and max-messages.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{window: window, max: max, arrivals: make(map[string][]time.Time)}
}

// DefaultRateLimiter returns a limiter matching spec.md's 60s/15-message
// defaults.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitWindow, RateLimitMaxMessages)
}

// Allow records an arrival for patientID at now and reports whether it is
// within the limit.
func (r *RateLimiter) Allow(patientID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	kept := r.arrivals[patientID][:0]
	for _, t := range r.arrivals[patientID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.max {
		r.arrivals[patientID] = kept
		return false
	}

	r.arrivals[patientID] = append(kept, now)
	return true
}

// PhaseStaleThresholds maps a diary phase to the duration after which it is
// considered stalled absent progress (spec.md §4.8); Intake/Clinical are
// the same, Booking is shorter, Monitoring/Closed never go stale.
var PhaseStaleThresholds = map[string]time.Duration{
	"intake":     72 * time.Hour,
	"clinical":   72 * time.Hour,
	"booking":    48 * time.Hour,
	"monitoring": 0, // never stale
	"closed":     0, // never stale
}

// IsPhaseStale reports whether a diary sitting in phase since enteredAt is
// now stale as of now.
func IsPhaseStale(phase string, enteredAt, now time.Time) bool {
	threshold, ok := PhaseStaleThresholds[phase]
	if !ok || threshold == 0 {
		return false
	}
	return now.Sub(enteredAt) > threshold
}

// AssessmentTimeout is the duration after which a pending deterioration
// assessment is force-completed with a conservative severity (spec.md §8
// scenario S8).
const AssessmentTimeout = 48 * time.Hour

// IsAssessmentStalled reports whether an assessment started at startedAt is
// stalled as of now.
func IsAssessmentStalled(startedAt, now time.Time) bool {
	return now.Sub(startedAt) > AssessmentTimeout
}

// CrossPhaseTimeout bounds how long a pre-detected cross-phase follow-up
// redirect stays armed before it is cleared (spec.md §4.2 step 6).
const CrossPhaseTimeout = 10 * time.Minute
