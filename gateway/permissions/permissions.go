// Package permissions implements the Gateway's role-ordered permission
// checks (spec.md §4.8) and the bounded audit log of every decision.
package permissions

import (
	"sync"
	"time"

	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

const (
	maxAuditLog = 500
	trimAuditTo = 250
)

// FullAccess is the helper permission that bypasses the fixed event-type map.
const FullAccess = "full_access"

// gpAllowedEvents is the fixed set of event types a GP sender may emit
// without any further permission lookup.
var gpAllowedEvents = map[events.Type]bool{
	events.GPResponse:       true,
	events.DocumentUploaded: true,
	events.Webhook:          true,
}

// helperEventPermission maps an event type a helper may emit to the
// permission string required on the helper's record. Event types absent
// from this map are emittable only by a helper holding FullAccess.
var helperEventPermission = map[events.Type]string{
	events.UserMessage:     "send_messages",
	events.DocumentUploaded: "upload_documents",
	events.DoctorCommand:   FullAccess,
}

// Decision is one audit log entry.
type Decision struct {
	Timestamp time.Time   `json:"timestamp"`
	PatientID string      `json:"patient_id"`
	EventType events.Type `json:"event_type"`
	SenderID  string      `json:"sender_id"`
	Role      events.SenderRole `json:"role"`
	Allowed   bool        `json:"allowed"`
	Reason    string      `json:"reason,omitempty"`
}

// Checker evaluates permission decisions and records them.
type Checker struct {
	mu  sync.Mutex
	log []Decision
}

// NewChecker returns an empty Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check evaluates whether env may be processed against d, recording the
// decision in the audit log. A nil diary is treated as "patient has no
// helper registry yet" (helper/GP checks against an empty registry).
func (c *Checker) Check(env events.Envelope, d *diary.Diary) (allowed bool, reason string) {
	allowed, reason = c.evaluate(env, d)
	c.record(Decision{
		Timestamp: time.Now().UTC(),
		PatientID: env.PatientID,
		EventType: env.EventType,
		SenderID:  env.SenderID,
		Role:      env.SenderRole,
		Allowed:   allowed,
		Reason:    reason,
	})
	return allowed, reason
}

func (c *Checker) evaluate(env events.Envelope, d *diary.Diary) (bool, string) {
	switch env.SenderRole {
	case events.RoleSystem, events.RoleAgent:
		return true, ""

	case events.RolePatient:
		return true, ""

	case events.RoleGP:
		if gpAllowedEvents[env.EventType] {
			return true, ""
		}
		if env.EventType == events.UserMessage {
			if c.helperHasPermission(d, env.SenderID, "send_messages") {
				return true, ""
			}
		}
		return false, "gp_cannot_emit_event_type"

	case events.RoleHelper:
		if c.helperHasPermission(d, env.SenderID, FullAccess) {
			return true, ""
		}
		required, known := helperEventPermission[env.EventType]
		if !known {
			return false, "helper_cannot_emit_internal_event"
		}
		if c.helperHasPermission(d, env.SenderID, required) {
			return true, ""
		}
		return false, "helper_missing_permission"

	default:
		return false, "unknown_sender_role"
	}
}

func (c *Checker) helperHasPermission(d *diary.Diary, helperID, permission string) bool {
	if d == nil {
		return false
	}
	h, found := d.HelperRegistry.LookupByID(helperID)
	if !found || !h.Verified {
		return false
	}
	for _, p := range h.Permissions {
		if p == FullAccess || p == permission {
			return true
		}
	}
	return false
}

func (c *Checker) record(dec Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, dec)
	if len(c.log) > maxAuditLog {
		c.log = append([]Decision{}, c.log[len(c.log)-trimAuditTo:]...)
	}
}

// AuditLog returns a copy of the current audit log, most recent last.
func (c *Checker) AuditLog() []Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Decision, len(c.log))
	copy(out, c.log)
	return out
}
