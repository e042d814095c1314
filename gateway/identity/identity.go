// Package identity resolves an inbound channel message (phone number,
// email, or channel-native id) to a patient id via a reverse contact
// index, handling UK phone number normalization and ambiguous matches
// (spec.md §4.9, §6 "Identity Resolver").
package identity

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
)

// ErrAmbiguous is returned when a contact resolves to more than one
// patient id.
var ErrAmbiguous = errors.New("identity: ambiguous contact match")

// ErrNotFound is returned when a contact has no known patient.
var ErrNotFound = errors.New("identity: contact not found")

var nonDigit = regexp.MustCompile(`[\s-]`)

// NormalizeUKPhone strips spaces/dashes and rewrites a leading "0" national
// prefix to the "+44" international form. Numbers already in international
// form, or not recognisably UK-shaped, are returned with whitespace/dashes
// stripped only.
func NormalizeUKPhone(raw string) string {
	s := nonDigit.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.HasPrefix(s, "0") && len(s) == 11 {
		return "+44" + s[1:]
	}
	return s
}

// Resolver maintains a reverse index from normalized contact -> patient ids.
type Resolver struct {
	mu    sync.RWMutex
	index map[string][]string // normalized contact -> patient ids
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{index: make(map[string][]string)}
}

// Register associates contact with patientID. contact is normalized before
// indexing (phone numbers via NormalizeUKPhone; anything else lowercased).
func (r *Resolver) Register(patientID, contact string) {
	key := normalizeContact(contact)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.index[key] {
		if id == patientID {
			return
		}
	}
	r.index[key] = append(r.index[key], patientID)
}

// Unregister removes the association between contact and patientID.
func (r *Resolver) Unregister(patientID, contact string) {
	key := normalizeContact(contact)
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.index[key]
	for i, id := range ids {
		if id == patientID {
			r.index[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.index[key]) == 0 {
		delete(r.index, key)
	}
}

// Resolve returns the unique patient id registered for contact. Returns
// ErrNotFound if none, ErrAmbiguous if more than one.
func (r *Resolver) Resolve(contact string) (string, error) {
	key := normalizeContact(contact)
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.index[key]
	switch len(ids) {
	case 0:
		return "", ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguous
	}
}

// Candidates returns every patient id registered for contact, for callers
// that want to handle ambiguity themselves (e.g. prompting the sender to
// disambiguate).
func (r *Resolver) Candidates(contact string) []string {
	key := normalizeContact(contact)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.index[key]))
	copy(out, r.index[key])
	return out
}

// RebuildFromDiaries clears and repopulates the index from a full set of
// diaries, used on startup recovery (spec.md §4.9).
func (r *Resolver) RebuildFromDiaries(diaries []*diary.Diary) {
	r.mu.Lock()
	r.index = make(map[string][]string)
	r.mu.Unlock()

	for _, d := range diaries {
		r.UpdateForPatient(d)
	}
}

// UpdateForPatient (re-)registers every known contact for d's patient: the
// patient's own phone/email, plus the contact of every registered helper,
// verified or not.
func (r *Resolver) UpdateForPatient(d *diary.Diary) {
	patientID := d.Header.PatientID
	if d.Intake.Phone != "" {
		r.Register(patientID, d.Intake.Phone)
	}
	if d.Intake.Email != "" {
		r.Register(patientID, d.Intake.Email)
	}
	for _, h := range d.HelperRegistry.Helpers {
		if h.Contact != "" {
			r.Register(patientID, h.Contact)
		}
	}
}

func normalizeContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return ""
	}
	if strings.Contains(contact, "@") {
		return strings.ToLower(contact)
	}
	if looksLikePhone(contact) {
		return NormalizeUKPhone(contact)
	}
	return strings.ToLower(contact)
}

func looksLikePhone(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		} else if r != '+' && r != ' ' && r != '-' {
			return false
		}
	}
	return digits >= 7
}
