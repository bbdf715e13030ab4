package caldav

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/core/port/out"
	"nextmeeting_server/pkg/apperr"
)

// Config for the CalDAV provider.
type Config struct {
	// URL of the calendar home set (or a single calendar collection).
	URL      string
	Username string
	Password string
	// UserEmail identifies the current user among event attendees.
	UserEmail string
	// CalendarPaths restricts sync to specific collections. Empty means
	// discover and use all.
	CalendarPaths []string
}

// Provider implements the calendar provider contract against a CalDAV
// server.
type Provider struct {
	config Config
	client *Client
	log    zerolog.Logger

	mu            sync.RWMutex
	lastSync      *time.Time
	lastError     string
	calendarCount int
}

// NewProvider creates a CalDAV provider.
func NewProvider(config Config, log zerolog.Logger) (*Provider, error) {
	if config.URL == "" {
		return nil, apperr.ConfigError("caldav: URL is required")
	}
	client, err := NewClient(config.URL, config.Username, config.Password, log)
	if err != nil {
		return nil, err
	}
	return &Provider{
		config: config,
		client: client,
		log:    log.With().Str("component", "provider").Str("provider", "caldav").Logger(),
	}, nil
}

// Name implements out.CalendarProvider.
func (p *Provider) Name() string { return "caldav" }

// IsAuthenticated implements out.CalendarProvider. Credential validity is
// only proven by talking to the server; present config counts as
// authenticated.
func (p *Provider) IsAuthenticated() bool { return p.config.Username != "" }

// RefreshAuth implements out.CalendarProvider. Basic/Digest credentials have
// nothing to refresh.
func (p *Provider) RefreshAuth(context.Context) error { return nil }

// SuggestedPollInterval implements out.CalendarProvider. DAV servers have no
// push channel, so polling somewhat slower than the default is kind.
func (p *Provider) SuggestedPollInterval() time.Duration { return 2 * out.DefaultPollInterval }

// MutateEvent implements out.CalendarProvider.
func (p *Provider) MutateEvent(context.Context, string, string, domain.MutationAction) error {
	return out.ErrMutationUnsupported
}

// ListCalendars implements out.CalendarProvider.
func (p *Provider) ListCalendars(ctx context.Context) ([]out.CalendarInfo, error) {
	collections, err := p.discover(ctx)
	if err != nil {
		return nil, p.recordError(err)
	}

	calendars := make([]out.CalendarInfo, 0, len(collections))
	for _, col := range collections {
		name := col.DisplayName
		if name == "" {
			name = col.Href
		}
		calendars = append(calendars, out.CalendarInfo{
			ID:          col.Href,
			Name:        name,
			Description: col.Description,
		})
	}
	return calendars, nil
}

// FetchEvents implements out.CalendarProvider. The concatenated per-calendar
// ctags act as the conditional token: when they match IfNoneMatch, nothing
// changed and no REPORT is issued.
func (p *Provider) FetchEvents(ctx context.Context, opts out.FetchOptions) (*out.FetchResult, error) {
	window := opts.TimeWindow
	if window.Start.IsZero() && window.End.IsZero() {
		window = domain.DefaultTimeWindow(time.Now())
	}

	collections, err := p.discover(ctx)
	if err != nil {
		return nil, p.recordError(err)
	}
	if len(opts.CalendarIDs) > 0 {
		collections = filterCollections(collections, opts.CalendarIDs)
	}

	combinedTag := combineCTags(collections)
	if combinedTag != "" && opts.IfNoneMatch == combinedTag {
		p.recordSuccess()
		return out.NotModified(), nil
	}

	var events []domain.RawEvent
	for _, col := range collections {
		objects, err := p.client.QueryEvents(ctx, col.Href, window.Start, window.End)
		if err != nil {
			return nil, p.recordError(err)
		}
		for _, obj := range objects {
			parsed, err := parseICS(obj.Data, col.Href, p.config.UserEmail, opts.ExpandRecurring, window.Start, window.End)
			if err != nil {
				p.log.Warn().Err(err).Str("href", obj.Href).Msg("skipping unparsable calendar object")
				continue
			}
			for i := range parsed {
				parsed[i].ETag = obj.ETag
			}
			events = append(events, parsed...)
			if opts.MaxResults > 0 && len(events) >= opts.MaxResults {
				events = events[:opts.MaxResults]
				break
			}
		}
	}

	p.recordSuccess()
	p.log.Debug().Int("events", len(events)).Int("calendars", len(collections)).Msg("fetched events")
	return &out.FetchResult{Events: events, SyncToken: combinedTag}, nil
}

// Status implements out.CalendarProvider.
func (p *Provider) Status(context.Context) out.ProviderStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return out.ProviderStatus{
		Name:            "caldav",
		IsAuthenticated: p.IsAuthenticated(),
		LastSync:        p.lastSync,
		Error:           p.lastError,
		CalendarCount:   p.calendarCount,
	}
}

func (p *Provider) discover(ctx context.Context) ([]CalendarCollection, error) {
	if len(p.config.CalendarPaths) > 0 {
		collections := make([]CalendarCollection, 0, len(p.config.CalendarPaths))
		for _, path := range p.config.CalendarPaths {
			collections = append(collections, CalendarCollection{Href: path})
		}
		return collections, nil
	}

	collections, err := p.client.FindCalendars(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		// The URL may point directly at one calendar collection.
		collections = []CalendarCollection{{Href: ""}}
	}

	p.mu.Lock()
	p.calendarCount = len(collections)
	p.mu.Unlock()
	return collections, nil
}

func filterCollections(collections []CalendarCollection, ids []string) []CalendarCollection {
	var kept []CalendarCollection
	for _, col := range collections {
		for _, id := range ids {
			if strings.Contains(col.Href, id) {
				kept = append(kept, col)
				break
			}
		}
	}
	return kept
}

// combineCTags folds the per-calendar change tags into one ordered token.
func combineCTags(collections []CalendarCollection) string {
	tags := make([]string, 0, len(collections))
	for _, col := range collections {
		if col.CTag != "" {
			tags = append(tags, fmt.Sprintf("%s=%s", col.Href, col.CTag))
		}
	}
	if len(tags) == 0 {
		return ""
	}
	sort.Strings(tags)
	return strings.Join(tags, ";")
}

func (p *Provider) recordSuccess() {
	now := time.Now()
	p.mu.Lock()
	p.lastSync = &now
	p.lastError = ""
	p.mu.Unlock()
}

func (p *Provider) recordError(err error) error {
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
	return err
}

var _ out.CalendarProvider = (*Provider)(nil)
