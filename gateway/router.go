// Package gateway implements the MedForce Gateway Core: the single
// control loop every signal entering the pre-consultation platform
// passes through (spec.md §4). It ties together idempotency tracking,
// rate limiting, chain-depth circuit breaking, diary load/save,
// permission checks, cross-phase content detection, agent dispatch,
// and outbound channel delivery into one ProcessEvent call.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shreya-uprety/medforce-gateway/gateway/agents"
	"github.com/shreya-uprety/medforce-gateway/gateway/channels"
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/gateway/permissions"
	"github.com/shreya-uprety/medforce-gateway/gateway/queue"
	"github.com/shreya-uprety/medforce-gateway/gateway/safety"
	"github.com/shreya-uprety/medforce-gateway/gwerrors"
	"github.com/shreya-uprety/medforce-gateway/internal/pool"
	"github.com/shreya-uprety/medforce-gateway/payload"
	"github.com/shreya-uprety/medforce-gateway/resilience/idempotency"
	"github.com/shreya-uprety/medforce-gateway/resilience/retry"
)

// MaxChainDepth bounds agent hand-off recursion (spec.md §4.2/§5). This is
// a simple counter, distinct from resilience/circuitbreaker's
// request-failure breaker: it protects against hand-off loops, not
// downstream call failures.
const MaxChainDepth = 10

// cachedDiary is the Gateway's in-memory L1 diary cache: the
// authoritative in-process view used between loads from the store.
type cachedDiary struct {
	diary      *diary.Diary
	generation int64
}

// Gateway wires together every subsystem package into the single
// ProcessEvent control loop.
type Gateway struct {
	store       *diary.Store
	idempotency idempotency.Tracker
	rateLimiter *safety.RateLimiter
	permissions *permissions.Checker
	agents      *agents.Registry
	channels    *channels.Registry
	queue       *queue.Manager
	saveRetryer retry.Retryer
	saveWorkers *pool.GoroutinePool
	logger      *zap.Logger

	cacheMu sync.Mutex
	cache   map[string]*cachedDiary

	events *eventLog
	dlq    *deadLetterQueue

	metrics *Metrics
}

// Config bundles the subsystems a Gateway is built from. Idempotency and
// Agents are required. New fills in defaults for a nil RateLimiter,
// Permissions, Metrics or Logger; a nil Store keeps diaries in the
// in-memory cache only, and a nil Channels skips outbound delivery.
type Config struct {
	Store       *diary.Store
	Idempotency idempotency.Tracker
	RateLimiter *safety.RateLimiter
	Permissions *permissions.Checker
	Agents      *agents.Registry
	Channels    *channels.Registry
	Metrics     *Metrics
	Logger      *zap.Logger
}

// New builds a Gateway. It creates its own per-patient queue.Manager and
// background-save retryer internally since those are Gateway-owned
// implementation details, not shared subsystems.
func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = safety.DefaultRateLimiter()
	}
	if cfg.Permissions == nil {
		cfg.Permissions = permissions.NewChecker()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}

	g := &Gateway{
		store:       cfg.Store,
		idempotency: cfg.Idempotency,
		rateLimiter: cfg.RateLimiter,
		permissions: cfg.Permissions,
		agents:      cfg.Agents,
		channels:    cfg.Channels,
		saveRetryer: retry.NewBackoffRetryer(retry.BackgroundSaveRetryPolicy(), cfg.Logger),
		saveWorkers: pool.NewGoroutinePool(pool.DefaultGoroutinePoolConfig()),
		logger:      cfg.Logger.With(zap.String("component", "gateway")),
		cache:       make(map[string]*cachedDiary),
		events:      newEventLog(),
		dlq:         newDeadLetterQueue(),
		metrics:     cfg.Metrics,
	}
	g.queue = queue.NewManager(g.runQueuedEvent, queue.DefaultIdleTimeout, g.logger)
	return g
}

// Submit is the external entry point: it enqueues env on its patient's
// serializing worker rather than processing inline, so two events for the
// same patient never race (spec.md §4.6).
func (g *Gateway) Submit(env events.Envelope) {
	g.queue.Enqueue(env.PatientID, env)
}

func (g *Gateway) runQueuedEvent(ctx context.Context, patientID string, item any) {
	env, ok := item.(events.Envelope)
	if !ok {
		g.logger.Error("queue: unexpected item type", zap.String("patient_id", patientID))
		return
	}
	if _, err := g.ProcessEvent(ctx, env); err != nil {
		g.logger.Warn("process event failed", zap.String("event_id", env.EventID), zap.Error(err))
	}
}

// ProcessEvent runs the full 20-step pipeline (spec.md §4.2) for one
// envelope and returns the primary agent's result, if one ran.
func (g *Gateway) ProcessEvent(ctx context.Context, env events.Envelope) (*agents.AgentResult, error) {
	start := time.Now()

	// Step 1: chain depth is read straight off the envelope; callers
	// looping an emitted event back in must have already incremented it.
	chainDepth := env.ChainDepth

	// Step 2: idempotency.
	if env.EventID != "" {
		dup, err := g.idempotency.Seen(ctx, env.PatientID, env.EventID)
		if err != nil {
			g.logger.Warn("idempotency check failed, proceeding", zap.Error(err))
		} else if dup {
			g.record(env, "", "duplicate", "")
			g.metrics.IncProcessed("duplicate")
			return nil, nil
		}
	}

	// Step 3: rate limiting, only for freshly-arrived patient messages.
	// Spec property 3 / scenario S4 require the result to carry exactly
	// one response stamped metadata.rate_limited=true, not a bare error.
	if chainDepth == 0 && env.EventType == events.UserMessage {
		if !g.rateLimiter.Allow(env.PatientID, time.Now().UTC()) {
			resp := agents.AgentResponse{
				Recipient: env.PatientID,
				Channel:   "pre_consultation",
				Message:   "You're sending messages a little too quickly — please wait a moment before the next one.",
				Metadata:  map[string]string{"rate_limited": "true"},
			}
			g.dispatchBestEffort(ctx, resp.Channel, channels.OutboundMessage{
				PatientID: resp.Recipient,
				ChannelID: resp.Channel,
				Text:      resp.Message,
				Metadata:  resp.Metadata,
			})
			g.record(env, "", "rate_limited", "")
			g.metrics.IncProcessed("rate_limited")
			return &agents.AgentResult{Responses: []agents.AgentResponse{resp}}, nil
		}
	}

	// Step 4: chain-depth circuit breaker.
	if chainDepth >= MaxChainDepth {
		g.logger.Error("chain depth exceeded, dropping event",
			zap.String("event_id", env.EventID), zap.Int("chain_depth", chainDepth))
		g.record(env, "", "chain_depth_exceeded", "")
		g.metrics.IncProcessed("chain_depth_exceeded")
		return nil, gwerrors.New(gwerrors.CodeCircuitBreaker, "chain depth exceeded")
	}

	// Step 5: load-or-create diary.
	d, generation, err := g.loadOrCreate(ctx, env.PatientID, env.CorrelationID)
	if err != nil {
		g.record(env, "", "store_error", err.Error())
		return nil, fmt.Errorf("load diary: %w", err)
	}
	d = d.Clone()

	// Step 6: cross-phase follow-up timeout.
	now := time.Now().UTC()
	if d.CrossPhaseState.Active && d.CrossPhaseState.Started != nil &&
		now.Sub(*d.CrossPhaseState.Started) > safety.CrossPhaseTimeout {
		d.CrossPhaseState = diary.CrossPhaseState{}
	}

	// Step 7: permission check. Spec property 8 / scenario S5 require the
	// result to contain exactly one rejection response whose text contains
	// "permission", not a bare error.
	if allowed, reason := g.permissions.Check(env, d); !allowed {
		resp := agents.AgentResponse{
			Recipient: env.PatientID,
			Channel:   "pre_consultation",
			Message:   "You don't have permission to do that.",
		}
		g.dispatchBestEffort(ctx, resp.Channel, channels.OutboundMessage{
			PatientID: resp.Recipient,
			ChannelID: resp.Channel,
			Text:      resp.Message,
		})
		g.record(env, "", "permission_denied", reason)
		g.metrics.IncProcessed("permission_denied")
		return &agents.AgentResult{Responses: []agents.AgentResponse{resp}}, nil
	}

	// Step 8: cross-phase content pre-detection, captured before the
	// agent runs so the emitted CROSS_PHASE_DATA event (step 14) carries
	// the phase the text actually originated from.
	fromPhase := d.Header.CurrentPhase
	var crossPhaseTargets []string
	if chainDepth == 0 && env.EventType == events.UserMessage && !d.CrossPhaseState.AwaitingResponse {
		crossPhaseTargets = safety.CrossPhaseTargets(env.Payload.String("text"), string(fromPhase))
	}

	// Step 9: target resolution.
	target, crossPhaseFollowup := resolveTarget(env, d)
	if target == "" {
		g.record(env, "", "no_route", "")
		g.metrics.IncProcessed("no_route")
		return nil, gwerrors.New(gwerrors.CodeNoRoute, "no target agent for event")
	}
	if crossPhaseFollowup {
		env.Payload = env.Payload.Set("_cross_phase_followup", true)
	}

	// Step 10: input truncation.
	if text := env.Payload.String("text"); text != "" {
		env.Payload = env.Payload.Set("text", safety.Truncate(text))
	}

	// Step 11: inbound conversation log entry.
	chatChannel := diary.ChatPreConsultation
	if env.SourceChatChannel != "" {
		chatChannel = diary.ChatChannel(env.SourceChatChannel)
	} else if d.Header.CurrentPhase == diary.PhaseMonitoring {
		chatChannel = diary.ChatMonitoring
	}
	if env.EventType == events.UserMessage {
		d.AddConversation(diary.ConversationEntry{
			Direction:   diary.DirectionInbound,
			Channel:     env.Source,
			Message:     env.Payload.String("text"),
			Timestamp:   now,
			ChatChannel: chatChannel,
		})
	}

	// Step 12: phase before agent invocation.
	phaseBefore := d.Header.CurrentPhase

	// Step 13: agent invocation.
	agent, ok := g.agents.Lookup(target)
	if !ok {
		g.record(env, target, "agent_not_found", "")
		g.metrics.IncProcessed("agent_not_found")
		return nil, gwerrors.New(gwerrors.CodeAgentNotFound, fmt.Sprintf("no agent registered for %q", target))
	}

	agentStart := time.Now()
	result, err := agent.Process(env, d)
	g.metrics.ObserveAgentDuration(target, time.Since(agentStart))
	if err != nil {
		g.dlq.record(DLQEntry{Event: env, Target: target, Err: err.Error(), Timestamp: now})
		g.record(env, target, "agent_error", err.Error())
		g.metrics.IncProcessed("agent_error")
		return nil, fmt.Errorf("agent %q: %w", target, err)
	}
	d = result.UpdatedDiary

	// Step 14: cross-phase event emission, only when the primary agent
	// produced no direct response of its own.
	if len(result.Responses) == 0 {
		for _, t := range crossPhaseTargets {
			d.CrossPhaseExtractions = append(d.CrossPhaseExtractions, diary.CrossPhaseExtraction{
				TargetAgent: t,
				FromPhase:   fromPhase,
				Text:        env.Payload.String("text"),
				Timestamp:   now,
			})
			result.EmittedEvents = append(result.EmittedEvents, events.Envelope{
				EventID:    env.EventID + ":cross:" + t,
				EventType:  events.CrossPhaseData,
				PatientID:  env.PatientID,
				SenderID:   target,
				SenderRole: events.RoleAgent,
				Timestamp:  now,
				Payload: payload.FromMap(map[string]any{
					"_target_agent": t,
					"text":          env.Payload.String("text"),
					"from_phase":    string(fromPhase),
					"channel":       env.Source,
				}),
			})
		}
	}

	// Steps 15-16: outbound chat-channel stamping and truncated logging.
	// Recomputed rather than reusing the inbound chatChannel: a hand-off
	// that lands on monitoring (either by target agent or by the diary's
	// phase moving there during this event) must log to the monitoring
	// chat even when the triggering message came in on pre_consultation.
	outboundChatChannel := chatChannel
	if target == "monitoring" || d.Header.CurrentPhase == diary.PhaseMonitoring {
		outboundChatChannel = diary.ChatMonitoring
	}
	for _, resp := range result.Responses {
		d.AddConversation(diary.ConversationEntry{
			Direction:   diary.DirectionOutbound,
			Channel:     resp.Channel,
			Message:     safety.TruncateForLog(resp.Message),
			Timestamp:   time.Now().UTC(),
			ChatChannel: outboundChatChannel,
		})
	}

	// Step 17: phase-transition stamping is handled by SetPhase inside
	// the agent; nothing further to stamp here beyond recording it.
	phaseAfter := d.Header.CurrentPhase
	d.Touch(time.Now().UTC())

	// Step 18: diary cache update.
	g.cacheMu.Lock()
	g.cache[env.PatientID] = &cachedDiary{diary: d, generation: generation}
	g.cacheMu.Unlock()

	// Step 19: dispatch outbound responses concurrently, one per channel
	// response — each is an independent I/O call and dispatchBestEffort
	// already swallows its own error, so there's nothing to fail fast on,
	// only latency to avoid stacking up when an agent hands back several
	// responses (e.g. a patient reply plus a GP handoff notice).
	eg, egCtx := errgroup.WithContext(ctx)
	for _, resp := range result.Responses {
		eg.Go(func() error {
			g.dispatchBestEffort(egCtx, resp.Channel, channels.OutboundMessage{
				PatientID: resp.Recipient,
				ChannelID: resp.Channel,
				Text:      resp.Message,
				Metadata:  resp.Metadata,
			})
			return nil
		})
	}
	_ = eg.Wait()

	// Background save with retry; a concurrency conflict means another
	// writer won the race, so we reload and retry against the fresh
	// generation rather than invalidate the cache entry we just set.
	g.backgroundSave(env.PatientID, d, generation)

	// Step 20: recursive loop-back of emitted events, one chain-depth
	// deeper, inheriting the monitoring chat channel only.
	for _, emitted := range result.EmittedEvents {
		emitted.ChainDepth = chainDepth + 1
		if outboundChatChannel == diary.ChatMonitoring {
			emitted.SourceChatChannel = string(diary.ChatMonitoring)
		}
		g.Submit(emitted)
	}

	g.recordTransition(env, target, "processed", "", phaseBefore, phaseAfter)
	g.metrics.IncProcessed("processed")
	g.metrics.ObservePipelineDuration(time.Since(start))

	return &result, nil
}

// Diary returns the current diary for patientID, preferring the
// in-memory cache over a store round-trip, for introspection endpoints.
// It returns diary.ErrNotFound if the patient has no diary yet.
func (g *Gateway) Diary(ctx context.Context, patientID string) (*diary.Diary, error) {
	g.cacheMu.Lock()
	if c, ok := g.cache[patientID]; ok {
		g.cacheMu.Unlock()
		return c.diary, nil
	}
	g.cacheMu.Unlock()

	if g.store == nil {
		return nil, diary.ErrNotFound
	}
	d, _, err := g.store.Load(ctx, patientID)
	return d, err
}

func (g *Gateway) loadOrCreate(ctx context.Context, patientID, correlationID string) (*diary.Diary, int64, error) {
	g.cacheMu.Lock()
	if c, ok := g.cache[patientID]; ok {
		g.cacheMu.Unlock()
		return c.diary, c.generation, nil
	}
	g.cacheMu.Unlock()

	if g.store != nil {
		d, gen, err := g.store.Load(ctx, patientID)
		if err == nil {
			return d, gen, nil
		}
		if err != diary.ErrNotFound {
			return nil, 0, err
		}
	}

	d := diary.New(patientID, correlationID, time.Now().UTC())
	return d, 0, nil
}

func (g *Gateway) backgroundSave(patientID string, d *diary.Diary, generation int64) {
	if g.store == nil {
		return
	}
	task := func(ctx context.Context) error {
		gen := &generation
		if generation == 0 {
			gen = nil
		}

		err := g.saveRetryer.Do(ctx, func() error {
			newGen, saveErr := g.store.Save(ctx, patientID, d, gen)
			if saveErr == diary.ErrConcurrency {
				fresh, freshGen, loadErr := g.store.Load(ctx, patientID)
				if loadErr != nil {
					return retry.WrapRetryable(loadErr)
				}
				merged := fresh.Clone()
				merged.ConversationLog = d.ConversationLog
				merged.Header = d.Header
				d = merged
				gen = &freshGen
				return retry.WrapRetryable(saveErr)
			}
			if saveErr != nil {
				return retry.WrapRetryable(saveErr)
			}
			g.cacheMu.Lock()
			g.cache[patientID] = &cachedDiary{diary: d, generation: newGen}
			g.cacheMu.Unlock()
			return nil
		})
		if err != nil {
			g.logger.Error("background diary save failed permanently",
				zap.String("patient_id", patientID), zap.Error(err))
			g.metrics.IncSaveFailure()
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	runTask := func(ctx context.Context) error {
		defer cancel()
		return task(ctx)
	}
	// Bounded by saveWorkers rather than spawning an unbounded goroutine
	// per save; a pool-full rejection still must not lose the save, so it
	// falls back to a direct goroutine.
	if err := g.saveWorkers.Submit(ctx, runTask); err != nil {
		g.logger.Warn("save worker pool saturated, saving directly",
			zap.String("patient_id", patientID), zap.Error(err))
		go runTask(ctx)
	}
}

func (g *Gateway) dispatchBestEffort(ctx context.Context, channelName string, msg channels.OutboundMessage) {
	if g.channels == nil {
		return
	}
	if err := g.channels.Dispatch(ctx, channelName, msg); err != nil {
		g.logger.Warn("dispatch failed", zap.String("channel", channelName), zap.Error(err))
	}
}

func (g *Gateway) record(env events.Envelope, target, outcome, detail string) {
	g.recordTransition(env, target, outcome, detail, "", "")
}

func (g *Gateway) recordTransition(env events.Envelope, target, outcome, detail string, phaseBefore, phaseAfter diary.Phase) {
	g.events.record(EventLogEntry{
		EventID:     env.EventID,
		EventType:   env.EventType,
		PatientID:   env.PatientID,
		Target:      target,
		Outcome:     outcome,
		Detail:      detail,
		PhaseBefore: string(phaseBefore),
		PhaseAfter:  string(phaseAfter),
		Timestamp:   time.Now().UTC(),
	})
}

// RecentEvents exposes the bounded event log for introspection endpoints.
func (g *Gateway) RecentEvents(limit int) []EventLogEntry { return g.events.Recent(limit) }

// DeadLetters exposes the DLQ for introspection and manual replay.
func (g *Gateway) DeadLetters() []DLQEntry { return g.dlq.All() }

// Replay resubmits a dead-lettered event for reprocessing, removing it
// from the DLQ first so a second failure re-enqueues it rather than
// producing a duplicate entry. Chain depth is reset to 0: a manual
// replay is a fresh operator-driven attempt, not a hand-off.
func (g *Gateway) Replay(eventID string) error {
	entry, ok := g.dlq.Remove(eventID)
	if !ok {
		return gwerrors.New(gwerrors.CodeNotFound, fmt.Sprintf("no dead-lettered event %q", eventID))
	}
	env := entry.Event
	env.ChainDepth = 0
	g.Submit(env)
	return nil
}

// Shutdown drains the per-patient queue workers and the background-save
// worker pool.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.queue.Shutdown(ctx)
	g.saveWorkers.Close()
	return err
}

// Health reports a coarse liveness signal for the health-check endpoint.
func (g *Gateway) Health() map[string]any {
	return map[string]any{
		"active_patients": g.queue.ActivePatients(),
		"dlq_size":        g.dlq.Size(),
	}
}
