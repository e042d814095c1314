// Package agents defines the Agent capability interface consumed by the
// router and provides the stub agents for each clinical phase (spec.md §3,
// §4.1, §9 "Polymorphism"). Agents are pure functions of (event, diary):
// they hold no reference to the Gateway, channel registry, or stores.
package agents

import (
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

// Attachment is an opaque reference carried by an AgentResponse.
type Attachment struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

// AgentResponse is one unit of outbound delivery an agent wants sent.
type AgentResponse struct {
	Recipient   string            `json:"recipient"`
	Channel     string            `json:"channel"`
	Message     string            `json:"message"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AgentResult is what an agent returns after processing one event.
type AgentResult struct {
	UpdatedDiary  *diary.Diary      `json:"-"`
	EmittedEvents []events.Envelope `json:"emitted_events,omitempty"`
	Responses     []AgentResponse   `json:"responses,omitempty"`
}

// Agent processes one event against the current diary state and returns
// the updated diary plus whatever it wants to happen next.
type Agent interface {
	Process(event events.Envelope, d *diary.Diary) (AgentResult, error)
}

// Registry maps agent name -> Agent, mirroring the channel dispatcher
// registry's shape (spec.md §9 "Polymorphism": a small, closed, named set).
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds a Registry from name->Agent pairs.
func NewRegistry(agents map[string]Agent) *Registry {
	return &Registry{agents: agents}
}

// Lookup returns the agent registered under name, and whether it exists.
func (r *Registry) Lookup(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}
