package google

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/core/port/out"
	"nextmeeting_server/pkg/apperr"
	"nextmeeting_server/pkg/httputil"
)

// pageSize is the per-page event count requested from the API.
const pageSize = 100

// Provider implements the calendar provider contract on the Google
// Calendar v3 API.
type Provider struct {
	name    string
	account string
	store   *TokenStore
	log     zerolog.Logger

	mu            sync.RWMutex
	lastSync      *time.Time
	lastError     string
	calendarCount int
}

// NewProvider creates a Google provider for one account. The provider name
// is "google:{account}".
func NewProvider(account string, store *TokenStore, log zerolog.Logger) *Provider {
	name := "google:" + account
	return &Provider{
		name:    name,
		account: account,
		store:   store,
		log:     log.With().Str("component", "provider").Str("provider", name).Logger(),
	}
}

// Name implements out.CalendarProvider.
func (p *Provider) Name() string { return p.name }

// IsAuthenticated implements out.CalendarProvider.
func (p *Provider) IsAuthenticated() bool { return p.store.IsAuthenticated() }

// RefreshAuth implements out.CalendarProvider.
func (p *Provider) RefreshAuth(ctx context.Context) error {
	current := p.store.Current()
	if current == nil {
		return apperr.AuthenticationFailed("no stored tokens; run the auth command first")
	}
	if !current.IsExpired(time.Now()) {
		return nil
	}
	return p.store.Refresh(ctx)
}

// SuggestedPollInterval implements out.CalendarProvider.
func (p *Provider) SuggestedPollInterval() time.Duration { return out.DefaultPollInterval }

func (p *Provider) service(ctx context.Context) (*calendar.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.GoogleClient())
	client := oauth2.NewClient(ctx, p.store.TokenSource(ctx))
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternalError, "failed to create calendar service")
	}
	return svc, nil
}

// FetchEvents implements out.CalendarProvider. Pagination stops when
// MaxResults is reached across pages. When a single calendar is fetched, a 304
// on a conditional fetch yields a not-modified result; with several calendars
// a 304 is returned as an error.
func (p *Provider) FetchEvents(ctx context.Context, opts out.FetchOptions) (*out.FetchResult, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return nil, p.recordError(err)
	}

	window := opts.TimeWindow
	if window.Start.IsZero() && window.End.IsZero() {
		window = domain.DefaultTimeWindow(time.Now())
	}

	calendarIDs := opts.CalendarIDs
	if len(calendarIDs) == 0 {
		calendarIDs = []string{"primary"}
	}

	result := &out.FetchResult{}
	for _, calendarID := range calendarIDs {
		events, etag, err := p.fetchCalendar(ctx, svc, calendarID, window, opts)
		if err != nil {
			if isNotModified(err) && len(calendarIDs) == 1 {
				return out.NotModified(), nil
			}
			return nil, p.recordError(err)
		}
		result.Events = append(result.Events, events...)
		if etag != "" {
			result.SyncToken = etag
		}
		if opts.MaxResults > 0 && len(result.Events) >= opts.MaxResults {
			result.Events = result.Events[:opts.MaxResults]
			break
		}
	}

	p.recordSuccess()
	p.log.Debug().Int("events", len(result.Events)).Msg("fetched events")
	return result, nil
}

func (p *Provider) fetchCalendar(ctx context.Context, svc *calendar.Service, calendarID string, window domain.TimeWindow, opts out.FetchOptions) ([]domain.RawEvent, string, error) {
	var events []domain.RawEvent
	var etag string
	pageToken := ""

	for {
		call := svc.Events.List(calendarID).
			TimeMin(window.Start.Format(time.RFC3339)).
			TimeMax(window.End.Format(time.RFC3339)).
			SingleEvents(opts.ExpandRecurring).
			MaxResults(pageSize).
			Context(ctx)
		if opts.ExpandRecurring {
			call = call.OrderBy("startTime")
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		if pageToken == "" && opts.IfNoneMatch != "" {
			call = call.IfNoneMatch(opts.IfNoneMatch)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, "", mapGoogleError(err)
		}
		etag = resp.Etag

		for _, item := range resp.Items {
			events = append(events, convertEvent(item, calendarID))
			if opts.MaxResults > 0 && len(events) >= opts.MaxResults {
				return events, etag, nil
			}
		}

		if resp.NextPageToken == "" {
			return events, etag, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListCalendars implements out.CalendarProvider.
func (p *Provider) ListCalendars(ctx context.Context) ([]out.CalendarInfo, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return nil, p.recordError(err)
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, p.recordError(mapGoogleError(err))
	}

	calendars := make([]out.CalendarInfo, 0, len(list.Items))
	for _, entry := range list.Items {
		calendars = append(calendars, out.CalendarInfo{
			ID:          entry.Id,
			Name:        entry.Summary,
			Description: entry.Description,
			IsPrimary:   entry.Primary,
			Timezone:    entry.TimeZone,
			Color:       entry.BackgroundColor,
		})
	}

	p.mu.Lock()
	p.calendarCount = len(calendars)
	p.mu.Unlock()
	return calendars, nil
}

// Status implements out.CalendarProvider.
func (p *Provider) Status(context.Context) out.ProviderStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return out.ProviderStatus{
		Name:            p.name,
		IsAuthenticated: p.store.IsAuthenticated(),
		LastSync:        p.lastSync,
		Error:           p.lastError,
		CalendarCount:   p.calendarCount,
	}
}

// MutateEvent implements out.CalendarProvider. Decline patches the self
// attendee's response status; Delete removes the event.
func (p *Provider) MutateEvent(ctx context.Context, calendarID, eventID string, action domain.MutationAction) error {
	svc, err := p.service(ctx)
	if err != nil {
		return err
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	switch action {
	case domain.MutationDelete:
		if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
			return mapGoogleError(err)
		}
		return nil

	case domain.MutationDecline:
		event, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return mapGoogleError(err)
		}
		declined := false
		for _, attendee := range event.Attendees {
			if attendee.Self {
				attendee.ResponseStatus = "declined"
				declined = true
			}
		}
		if !declined {
			return apperr.BadRequest("cannot decline: current user is not an attendee")
		}
		patch := &calendar.Event{Attendees: event.Attendees}
		if _, err := svc.Events.Patch(calendarID, eventID, patch).Context(ctx).Do(); err != nil {
			return mapGoogleError(err)
		}
		return nil

	default:
		return apperr.BadRequest(fmt.Sprintf("unknown mutation action %q", action))
	}
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

func isNotModified(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 304
}

// mapGoogleError translates API failures into the provider error taxonomy.
func mapGoogleError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 304 {
			return apiErr // handled by the conditional-fetch path
		}
		return apperr.FromHTTPStatus(apiErr.Code, apiErr.Message).WithError(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("google calendar request")
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Network("google calendar request", err)
}

var _ out.CalendarProvider = (*Provider)(nil)
