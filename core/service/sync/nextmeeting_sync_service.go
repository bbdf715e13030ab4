// Package sync runs one fetch-and-normalize cycle across all configured
// providers, updating the cache, the shared state, and the notification
// engine.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/core/port/out"
	"nextmeeting_server/core/service/normalize"
	"nextmeeting_server/core/service/notification"
	"nextmeeting_server/core/service/state"
	"nextmeeting_server/pkg/apperr"
	"nextmeeting_server/pkg/cache"
	"nextmeeting_server/pkg/protocol"
	"nextmeeting_server/pkg/resilience"
)

// Config for the sync service.
type Config struct {
	// WindowPast and WindowFuture bound the fetch window around now.
	WindowPast   time.Duration
	WindowFuture time.Duration
	// MaxResults caps events per provider per cycle. Zero means no cap.
	MaxResults int
	// ExpandRecurring expands recurring events into instances.
	ExpandRecurring bool
}

// DefaultConfig matches the default fetch window: 12 h back, 48 h ahead.
func DefaultConfig() Config {
	return Config{
		WindowPast:      12 * time.Hour,
		WindowFuture:    48 * time.Hour,
		ExpandRecurring: true,
	}
}

// Service orchestrates the sync cycle. It owns the event cache; the cache
// is never shared outside the sync task.
type Service struct {
	config     Config
	providers  []out.CalendarProvider
	byName     map[string]out.CalendarProvider
	breakers   map[string]*resilience.Breaker
	normalizer *normalize.Normalizer
	cache      *cache.EventCache
	state      *state.ServerState
	engine     *notification.Engine
	location   *time.Location
	log        zerolog.Logger
}

// NewService creates the sync service. loc is the display timezone,
// defaulting to the system local zone.
func NewService(
	config Config,
	providers []out.CalendarProvider,
	eventCache *cache.EventCache,
	serverState *state.ServerState,
	engine *notification.Engine,
	loc *time.Location,
	log zerolog.Logger,
) *Service {
	if loc == nil {
		loc = time.Local
	}

	byName := make(map[string]out.CalendarProvider, len(providers))
	breakers := make(map[string]*resilience.Breaker, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
		breakers[p.Name()] = resilience.NewBreaker(resilience.DefaultBreakerConfig(p.Name()), log)
	}

	return &Service{
		config:     config,
		providers:  providers,
		byName:     byName,
		breakers:   breakers,
		normalizer: normalize.New(),
		cache:      eventCache,
		state:      serverState,
		engine:     engine,
		location:   loc,
		log:        log.With().Str("component", "sync").Logger(),
	}
}

type providerOutcome struct {
	name     string
	meetings []domain.MeetingView
	etag     string
	cached   bool
	err      error
}

// Sync runs one full cycle. A cycle succeeds when at least one provider
// delivered (or confirmed) data; it fails only when every provider failed,
// so the scheduler backs off without hiding partial results from clients.
func (s *Service) Sync(ctx context.Context) error {
	now := time.Now()
	window := domain.TimeWindow{
		Start: now.UTC().Add(-s.config.WindowPast),
		End:   now.UTC().Add(s.config.WindowFuture),
	}

	outcomes := make([]providerOutcome, len(s.providers))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, provider := range s.providers {
		group.Go(func() error {
			outcomes[i] = s.syncProvider(groupCtx, provider, window, now)
			return nil
		})
	}
	group.Wait()

	failures := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failures++
			s.log.Warn().Err(outcome.err).Str("provider", outcome.name).Msg("provider sync failed")
			continue
		}
		if outcome.cached {
			s.cache.ExtendTTL(outcome.name, s.cache.DefaultTTL())
		} else if outcome.etag != "" {
			s.cache.InsertWithETag(outcome.name, outcome.meetings, outcome.etag)
		} else {
			s.cache.Insert(outcome.name, outcome.meetings)
		}
	}
	s.cache.EvictExpired()

	meetings := s.cache.AllMeetings()
	s.state.SetMeetings(meetings)
	s.publishStatuses(ctx, outcomes)

	if s.engine != nil {
		s.engine.CheckAndNotify(ctx, meetings, time.Now().In(s.location))
		s.engine.Cleanup()
	}

	if len(s.providers) > 0 && failures == len(s.providers) {
		return fmt.Errorf("all %d providers failed", failures)
	}
	s.log.Debug().Int("meetings", len(meetings)).Int("failed_providers", failures).Msg("sync cycle complete")
	return nil
}

func (s *Service) syncProvider(ctx context.Context, provider out.CalendarProvider, window domain.TimeWindow, now time.Time) providerOutcome {
	name := provider.Name()
	outcome := providerOutcome{name: name}

	opts := out.FetchOptions{
		TimeWindow:      window,
		MaxResults:      s.config.MaxResults,
		ExpandRecurring: s.config.ExpandRecurring,
		IfNoneMatch:     s.cache.GetETag(name),
	}

	var result *out.FetchResult
	err := s.breakers[name].Execute(func() error {
		var fetchErr error
		result, fetchErr = provider.FetchEvents(ctx, opts)
		return fetchErr
	})
	if err != nil {
		outcome.err = err
		return outcome
	}

	if result.NotModified {
		outcome.cached = true
		if entry := s.cache.GetValid(name); entry != nil {
			outcome.meetings = entry.Meetings
		}
		return outcome
	}

	events := s.normalizer.NormalizeAll(result.Events)
	views := make([]domain.MeetingView, 0, len(events))
	for i := range events {
		views = append(views, domain.NewMeetingView(&events[i], name, now, s.location))
	}
	outcome.meetings = views
	outcome.etag = result.SyncToken
	return outcome
}

// publishStatuses pushes per-provider health into the shared state.
func (s *Service) publishStatuses(ctx context.Context, outcomes []providerOutcome) {
	for _, outcome := range outcomes {
		provider := s.byName[outcome.name]
		status := provider.Status(ctx)

		entry := protocol.ProviderStatus{
			Name:       outcome.name,
			Healthy:    outcome.err == nil && status.IsAuthenticated,
			LastFetch:  status.LastSync,
			EventCount: len(outcome.meetings),
		}
		if outcome.err != nil {
			entry.Error = outcome.err.Error()
		} else if status.Error != "" {
			entry.Error = status.Error
		}
		s.state.SetProviderStatus(entry)
	}
}

// Mutate routes an event mutation to the provider registered under
// providerName. The provider's categorical error is forwarded untouched.
func (s *Service) Mutate(ctx context.Context, providerName, calendarID, eventID string, action domain.MutationAction) error {
	provider, ok := s.byName[providerName]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("provider %q", providerName))
	}
	return provider.MutateEvent(ctx, calendarID, eventID, action)
}

// RefreshAuth refreshes credentials on every provider, keeping healthy
// providers alive when one account degrades.
func (s *Service) RefreshAuth(ctx context.Context) {
	for _, provider := range s.providers {
		if err := provider.RefreshAuth(ctx); err != nil {
			s.log.Warn().Err(err).Str("provider", provider.Name()).Msg("auth refresh failed")
		}
	}
}
