package intake

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bowerbird-app/captain-hook-sub005/core"
	"github.com/bowerbird-app/captain-hook-sub005/guard"
	"github.com/bowerbird-app/captain-hook-sub005/verifiers"
)

// AcceptRequest is one raw delivery as it arrived at the endpoint.
type AcceptRequest struct {
	Provider  string
	Token     string
	Body      []byte
	Headers   map[string]string
	RequestID string
}

// AcceptResult reports an admitted delivery. Duplicate means the event
// already existed; no new actions were created for it.
type AcceptResult struct {
	Event     core.IncomingEvent
	Actions   []core.EventAction
	Duplicate bool
}

// Service is the intake orchestrator: it authenticates a delivery, runs the
// guards, admits the event exactly once, and dispatches the bound actions.
type Service struct {
	Providers core.ProviderStore
	Events    core.EventStore
	Actions   core.ActionStore
	Registry  *core.ActionRegistry
	Verifiers *verifiers.Registry
	Scheduler core.Scheduler
	Runner    core.TaskRunner
	Rate      *guard.RateGuard
	Size      guard.SizeGuard
	Window    *guard.TimeWindowValidator
	Observer  core.Observer
	Now       func() time.Time
}

// New wires an intake service from resolved engine dependencies. Runner
// executes synchronous actions inline; Scheduler carries asynchronous ones.
func New(deps core.EngineDependencies, runner core.TaskRunner, registry *verifiers.Registry) *Service {
	if registry == nil {
		registry = verifiers.DefaultRegistry()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time {
			return time.Now().UTC()
		}
	}
	rate := guard.NewRateGuard(deps.RateCounterStore)
	rate.Now = now
	window := guard.NewTimeWindowValidator()
	window.Now = now
	return &Service{
		Providers: deps.ProviderStore,
		Events:    deps.EventStore,
		Actions:   deps.ActionStore,
		Registry:  deps.ActionRegistry,
		Verifiers: registry,
		Scheduler: deps.Scheduler,
		Runner:    runner,
		Rate:      rate,
		Window:    window,
		Observer:  core.Observer{Logger: deps.Logger, Metrics: deps.MetricsRecorder},
		Now:       now,
	}
}

// Accept runs the full admission flow for one delivery. Rejections come
// back as categorized errors carrying the client-facing message and status.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (result AcceptResult, err error) {
	if s == nil {
		return AcceptResult{}, fmt.Errorf("intake: service is nil")
	}
	startedAt := s.now()
	providerName := strings.TrimSpace(strings.ToLower(req.Provider))
	fields := map[string]any{
		"provider":   providerName,
		"request_id": strings.TrimSpace(req.RequestID),
	}
	defer func() {
		fields["duplicate"] = result.Duplicate
		s.Observer.ObserveOperation(ctx, startedAt, "webhook_accept", err, fields)
	}()

	provider, lookupErr := s.Providers.Get(ctx, providerName)
	if lookupErr != nil {
		return AcceptResult{}, core.NewUnknownProviderError(providerName)
	}
	if !provider.Active {
		return AcceptResult{}, core.NewProviderInactiveError(providerName)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(req.Token)), []byte(provider.Token)) != 1 {
		return AcceptResult{}, core.NewInvalidTokenError(providerName)
	}

	if err := s.Size.Check(req.Body, provider); err != nil {
		return AcceptResult{}, err
	}
	if s.Rate != nil {
		if err := s.Rate.Check(ctx, provider); err != nil {
			return AcceptResult{}, err
		}
	}

	verifier := s.resolveVerifier(provider)
	verifierCfg := verifiers.Config{
		Secret:          provider.Secret,
		NotificationURL: provider.NotificationURL,
	}
	// An empty secret is an explicit bypass decided here, not inside the
	// verifier: misconfigured providers fail closed in the verifier itself.
	if strings.TrimSpace(provider.Secret) != "" || verifierRequiresNoSecret(provider.Verifier) {
		if !verifier.Verify(req.Body, req.Headers, verifierCfg) {
			return AcceptResult{}, core.NewInvalidSignatureError(providerName)
		}
	}

	if s.Window != nil {
		timestamp, hasTimestamp := verifier.ExtractTimestamp(req.Headers)
		if err := s.Window.Check(timestamp, hasTimestamp, provider); err != nil {
			return AcceptResult{}, err
		}
	}

	var payload map[string]any
	if decodeErr := json.Unmarshal(req.Body, &payload); decodeErr != nil {
		return AcceptResult{}, core.NewInvalidJSONError(providerName, decodeErr)
	}

	externalID, _ := verifier.ExtractEventID(payload, req.Headers)
	eventType, _ := verifier.ExtractEventType(payload, req.Headers)
	if strings.TrimSpace(externalID) == "" {
		return AcceptResult{}, core.NewMissingEventIDError(providerName)
	}
	fields["external_id"] = externalID
	fields["event_type"] = eventType

	event, created, admitErr := s.Events.Admit(ctx, core.AdmitEventInput{
		Provider:   providerName,
		ExternalID: externalID,
		EventType:  eventType,
		Payload:    payload,
		Headers:    req.Headers,
		RequestID:  req.RequestID,
		ReceivedAt: s.now(),
	})
	if admitErr != nil {
		return AcceptResult{}, admitErr
	}
	fields["event_id"] = event.ID
	if !created {
		return AcceptResult{Event: event, Duplicate: true}, nil
	}

	configs := s.Registry.Lookup(providerName, eventType)
	actions, createErr := s.Actions.CreateForEvent(ctx, event.ID, configs)
	if createErr != nil {
		return AcceptResult{}, createErr
	}
	if len(actions) > 0 {
		if _, err := s.Events.RecalculateStatus(ctx, event.ID); err != nil {
			return AcceptResult{}, err
		}
	}

	s.dispatch(ctx, event, configs, actions)

	refreshed, getErr := s.Events.Get(ctx, event.ID)
	if getErr == nil {
		event = refreshed
	}
	return AcceptResult{Event: event, Actions: actions}, nil
}

// dispatch runs the created rows in priority order: synchronous bindings
// execute inline before the response, asynchronous ones go to the
// scheduler. Execution errors settle into the rows; they never fail intake.
func (s *Service) dispatch(ctx context.Context, event core.IncomingEvent, configs []core.ActionConfig, actions []core.EventAction) {
	async := make(map[string]bool, len(configs))
	for _, config := range configs {
		if config.Async {
			async[config.ActionClass] = true
		}
	}

	for _, action := range actions {
		task := core.ScheduledTask{
			ActionID: action.ID,
			EventID:  event.ID,
			Attempt:  1,
		}
		if async[action.ActionClass] && s.Scheduler != nil {
			if err := s.Scheduler.ScheduleAfter(ctx, 0, task); err != nil {
				s.Observer.LogError(ctx, "async dispatch failed", map[string]any{
					"action_id":    action.ID,
					"event_id":     event.ID,
					"action_class": action.ActionClass,
					"error":        err.Error(),
				})
			}
			continue
		}
		if s.Runner == nil {
			continue
		}
		if err := s.Runner.Run(ctx, task); err != nil {
			s.Observer.LogError(ctx, "inline dispatch failed", map[string]any{
				"action_id":    action.ID,
				"event_id":     event.ID,
				"action_class": action.ActionClass,
				"error":        err.Error(),
			})
		}
	}
}

func (s *Service) resolveVerifier(provider core.ProviderConfig) verifiers.Verifier {
	name := strings.TrimSpace(strings.ToLower(provider.Verifier))
	if name == "" {
		name = "generic"
	}
	if s.Verifiers != nil {
		if verifier, ok := s.Verifiers.Resolve(name); ok {
			return verifier
		}
	}
	return verifiers.GenericVerifier{}
}

// verifierRequiresNoSecret reports schemes that authenticate without a
// shared secret and therefore must always run.
func verifierRequiresNoSecret(name string) bool {
	return strings.TrimSpace(strings.ToLower(name)) == "paypal"
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
