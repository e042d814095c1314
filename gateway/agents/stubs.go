package agents

import (
	"fmt"
	"time"

	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/gateway/safety"
	"github.com/shreya-uprety/medforce-gateway/payload"
)

func text(event events.Envelope) string {
	return event.Payload.String("text")
}

// IntakeAgent collects required demographic fields one at a time and hands
// off to clinical once IsComplete() is satisfied.
type IntakeAgent struct{}

func (IntakeAgent) Process(event events.Envelope, d *diary.Diary) (AgentResult, error) {
	d = d.Clone()

	for _, field := range d.Intake.GetMissingRequired() {
		if v := event.Payload.String(field); v != "" {
			switch field {
			case "name":
				d.Intake.Name = v
			case "date_of_birth":
				d.Intake.DateOfBirth = v
			case "phone":
				d.Intake.Phone = v
			case "address":
				d.Intake.Address = v
			case "nhs_number":
				d.Intake.NHSNumber = v
			case "contact_preference":
				d.Intake.ContactPreference = v
			}
			d.Intake.MarkFieldCollected(field)
		}
	}

	result := AgentResult{UpdatedDiary: d}

	if d.Intake.IsComplete() {
		d.SetPhase(diary.PhaseClinical, time.Now().UTC())
		result.Responses = append(result.Responses, AgentResponse{
			Recipient: event.PatientID,
			Channel:   "pre_consultation",
			Message:   "Thanks, that's everything we need to get started. A clinician will now review your details.",
		})
		result.EmittedEvents = append(result.EmittedEvents, events.NewHandoff(events.IntakeComplete, event.PatientID, "intake", payload.Empty()))
		return result, nil
	}

	missing := d.Intake.GetMissingRequired()
	result.Responses = append(result.Responses, AgentResponse{
		Recipient: event.PatientID,
		Channel:   "pre_consultation",
		Message:   fmt.Sprintf("Could you also confirm your %s?", missing[0]),
	})
	return result, nil
}

// ClinicalAgent advances the sub-phase, records uploaded documents
// (rejecting a repeated content hash), and on a GP response completes risk
// scoring and hands off to booking. It does not record question/answer
// pairs.
type ClinicalAgent struct{}

func (ClinicalAgent) Process(event events.Envelope, d *diary.Diary) (AgentResult, error) {
	d = d.Clone()

	if d.Clinical.SubPhase == "" || d.Clinical.SubPhase == diary.SubPhaseNotStarted {
		d.Clinical.AdvanceSubPhase(diary.SubPhaseAskingQuestions)
	}

	if event.EventType == events.DocumentUploaded {
		hash := event.Payload.String("content_hash")
		if d.Clinical.HasDocumentHash(hash) {
			return AgentResult{
				UpdatedDiary: d,
				Responses: []AgentResponse{{
					Recipient: event.PatientID,
					Channel:   "pre_consultation",
					Message:   "We've already received this document — no need to send it again.",
				}},
			}, nil
		}
		d.Clinical.Documents = append(d.Clinical.Documents, diary.ClinicalDocument{
			Name:        event.Payload.String("name"),
			ContentHash: hash,
			ReceivedAt:  time.Now().UTC(),
		})
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: event.PatientID,
				Channel:   "pre_consultation",
				Message:   "Thanks, we've received your document and added it to your file.",
			}},
		}, nil
	}

	if event.EventType == events.GPResponse {
		d.Clinical.AdvanceSubPhase(diary.SubPhaseScoringRisk)
		d.Clinical.AdvanceSubPhase(diary.SubPhaseComplete)
		d.SetPhase(diary.PhaseBooking, time.Now().UTC())
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: event.PatientID,
				Channel:   "pre_consultation",
				Message:   "Thanks for your patience — we're ready to book your appointment.",
			}},
			EmittedEvents: []events.Envelope{
				events.NewHandoff(events.ClinicalComplete, event.PatientID, "clinical", payload.Empty()),
			},
		}, nil
	}

	return AgentResult{
		UpdatedDiary: d,
		Responses: []AgentResponse{{
			Recipient: event.PatientID,
			Channel:   "pre_consultation",
			Message:   "Thanks, noted. Can you tell me about any current medications?",
		}},
	}, nil
}

// BookingAgent offers and confirms appointment slots, handing off to
// monitoring once confirmed.
type BookingAgent struct{}

func (BookingAgent) Process(event events.Envelope, d *diary.Diary) (AgentResult, error) {
	d = d.Clone()

	if chosen := event.Payload.String("slot_id"); chosen != "" {
		d.Booking.SelectedSlot = &diary.SlotOption{SlotID: chosen}
		d.Booking.Confirmed = true
		d.SetPhase(diary.PhaseMonitoring, time.Now().UTC())
		d.Monitoring.MonitoringActive = true
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: event.PatientID,
				Channel:   "pre_consultation",
				Message:   "Your appointment is confirmed. We'll check in with you periodically before then.",
			}},
			EmittedEvents: []events.Envelope{
				events.NewHandoff(events.BookingComplete, event.PatientID, "booking", payload.Empty()),
			},
		}, nil
	}

	return AgentResult{
		UpdatedDiary: d,
		Responses: []AgentResponse{{
			Recipient: event.PatientID,
			Channel:   "pre_consultation",
			Message:   "Here are the next available appointment slots. Which works best?",
		}},
	}, nil
}

// checkStalledAssessment force-completes a deterioration assessment that
// has sat active-and-incomplete past safety.AssessmentTimeout, escalating
// conservatively rather than leaving the patient's risk unassessed
// (spec.md §4.9, scenario S8).
func checkStalledAssessment(event events.Envelope, d *diary.Diary, now time.Time) (AgentResult, bool) {
	assessment := &d.Monitoring.DeteriorationAssessment
	if !assessment.Active || assessment.AssessmentComplete {
		return AgentResult{}, false
	}
	if !safety.IsAssessmentStalled(assessment.Started, now) {
		return AgentResult{}, false
	}

	severity := diary.SeverityModerate
	assessment.AssessmentComplete = true
	assessment.Active = false
	assessment.Severity = &severity
	assessment.Recommendation = "escalate_to_clinical"
	assessment.Reasoning = "assessment timed out awaiting patient response; completed conservatively"
	d.Monitoring.AddEntry(diary.MonitoringEntry{Type: "assessment_timeout", Timestamp: now})
	d.Header.RiskLevel = diary.RiskHigh

	return AgentResult{
		UpdatedDiary: d,
		Responses: []AgentResponse{{
			Recipient: event.PatientID,
			Channel:   "monitoring",
			Message:   "We haven't heard back from you about how you've been feeling, so we're escalating this to your clinical team to be safe.",
		}},
		EmittedEvents: []events.Envelope{
			events.NewHandoff(events.DeteriorationAlert, event.PatientID, "monitoring", payload.Empty()),
		},
	}, true
}

// checkPhaseStaleness nudges a patient whose current phase has sat past
// its SLA threshold without having already nudged for that phase
// (spec.md §4.9).
func checkPhaseStaleness(event events.Envelope, d *diary.Diary, now time.Time) (AgentResult, bool) {
	phase := string(d.Header.CurrentPhase)
	if !safety.IsPhaseStale(phase, d.Header.PhaseEnteredAt, now) {
		return AgentResult{}, false
	}

	entryType := "phase_stale_" + phase
	if d.Monitoring.HasEntryType(entryType) {
		return AgentResult{}, false
	}

	d.Monitoring.AddEntry(diary.MonitoringEntry{Type: entryType, Timestamp: now})
	d.Monitoring.AlertsFired = append(d.Monitoring.AlertsFired, entryType)

	return AgentResult{
		UpdatedDiary: d,
		Responses: []AgentResponse{{
			Recipient: event.PatientID,
			Channel:   "monitoring",
			Message:   fmt.Sprintf("It's been a while since your %s step moved forward — let us know if there's anything holding things up.", phase),
		}},
	}, true
}

// MonitoringAgent handles heartbeats and patient check-ins during the
// monitoring phase.
type MonitoringAgent struct{}

func (MonitoringAgent) Process(event events.Envelope, d *diary.Diary) (AgentResult, error) {
	d = d.Clone()

	switch event.EventType {
	case events.Heartbeat:
		now := time.Now().UTC()
		milestone := event.Payload.String("milestone")

		if result, ok := checkStalledAssessment(event, d, now); ok {
			return result, nil
		}
		if result, ok := checkPhaseStaleness(event, d, now); ok {
			return result, nil
		}

		d.Monitoring.AddEntry(diary.MonitoringEntry{
			Type:      milestone,
			Timestamp: now,
		})
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: event.PatientID,
				Channel:   "monitoring",
				Message:   "Checking in ahead of your appointment — how have you been feeling?",
				Metadata:  map[string]string{"milestone": milestone},
			}},
		}, nil

	case events.DeteriorationAlert:
		d.Header.RiskLevel = diary.RiskHigh
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: event.PatientID,
				Channel:   "monitoring",
				Message:   "Thanks for letting us know. Based on what you've described, please contact your GP or 111 promptly.",
			}},
		}, nil

	default:
		d.Monitoring.AddEntry(diary.MonitoringEntry{Type: "message", Timestamp: time.Now().UTC(), Detail: text(event)})
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: event.PatientID,
				Channel:   "monitoring",
				Message:   "Thanks, that's been noted.",
			}},
		}, nil
	}
}

// GPCommsAgent relays queries to, and responses from, the patient's GP.
type GPCommsAgent struct{}

func (GPCommsAgent) Process(event events.Envelope, d *diary.Diary) (AgentResult, error) {
	d = d.Clone()

	switch event.EventType {
	case events.GPQuery:
		d.GPChannel.AddQuery(diary.GPQuery{
			ID:   event.EventID,
			Type: event.Payload.String("type"),
			Text: event.Payload.String("text"),
			Sent: time.Now().UTC(),
		})
		return AgentResult{UpdatedDiary: d}, nil

	case events.GPResponse:
		now := time.Now().UTC()
		for i := range d.GPChannel.Queries {
			if d.GPChannel.Queries[i].Status == diary.GPQueryPending {
				d.GPChannel.Queries[i].Status = diary.GPQueryResponded
				d.GPChannel.Queries[i].Received = &now
				break
			}
		}
		return AgentResult{
			UpdatedDiary:  d,
			EmittedEvents: []events.Envelope{events.NewHandoff(events.GPResponse, event.PatientID, "gp_comms", event.Payload)},
		}, nil

	case events.GPReminder:
		now := time.Now().UTC()
		queryID := event.Payload.String("query_id")
		for i := range d.GPChannel.Queries {
			if d.GPChannel.Queries[i].ID == queryID {
				d.GPChannel.Queries[i].ReminderSent = &now
				break
			}
		}
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: d.GPChannel.GPEmail,
				Channel:   "gp_channel",
				Message:   "Reminder: a query regarding your patient is still awaiting a response.",
			}},
		}, nil

	default:
		return AgentResult{UpdatedDiary: d}, nil
	}
}

// HelperManagerAgent registers and verifies helpers (e.g. a family member
// helping a patient through pre-consultation).
type HelperManagerAgent struct{}

func (HelperManagerAgent) Process(event events.Envelope, d *diary.Diary) (AgentResult, error) {
	d = d.Clone()

	switch event.EventType {
	case events.HelperRegistration:
		d.HelperRegistry.Add(diary.Helper{
			ID:           event.Payload.String("helper_id"),
			Name:         event.Payload.String("name"),
			Relationship: event.Payload.String("relationship"),
			Channel:      event.Payload.String("channel"),
			Contact:      event.Payload.String("contact"),
			Permissions:  []string{"send_messages"},
		})
		return AgentResult{
			UpdatedDiary: d,
			Responses: []AgentResponse{{
				Recipient: event.PatientID,
				Channel:   "pre_consultation",
				Message:   "A helper has requested access to assist with your pre-consultation. We'll verify them shortly.",
			}},
		}, nil

	case events.HelperVerified:
		d.HelperRegistry.Verify(event.Payload.String("helper_id"))
		return AgentResult{UpdatedDiary: d}, nil

	default:
		return AgentResult{UpdatedDiary: d}, nil
	}
}

// ErrorHandlerAgent is the terminal sink for AGENT_ERROR events.
type ErrorHandlerAgent struct{}

func (ErrorHandlerAgent) Process(event events.Envelope, d *diary.Diary) (AgentResult, error) {
	return AgentResult{UpdatedDiary: d}, nil
}
