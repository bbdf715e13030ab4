// Package caldav implements the CalDAV provider: PROPFIND calendar
// discovery, REPORT calendar-query event fetch, and ICS parsing.
package caldav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icholy/digest"
	"github.com/rs/zerolog"

	"nextmeeting_server/pkg/apperr"
	"nextmeeting_server/pkg/httputil"
)

// icsTimeLayout is the iCalendar UTC timestamp format used in time-range
// filters.
const icsTimeLayout = "20060102T150405Z"

// Client speaks WebDAV/CalDAV against one server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient builds a client for the endpoint. Authentication negotiates
// Basic or Digest from the server's WWW-Authenticate challenge: credentials
// ride as Basic by default, and the digest transport answers a Digest
// challenge, reusing the server nonce with an incrementing nc.
func NewClient(endpoint, username, password string, log zerolog.Logger) (*Client, error) {
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, apperr.ConfigError("invalid CalDAV URL: " + err.Error())
	}

	base := httputil.CalDAVClient()
	transport := http.RoundTripper(base.Transport)
	if username != "" {
		transport = &digest.Transport{
			Username:  username,
			Password:  password,
			Transport: &basicAuthTransport{username: username, password: password, next: base.Transport},
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   base.Timeout,
		},
		log: log.With().Str("component", "caldav_client").Logger(),
	}, nil
}

// basicAuthTransport attaches Basic credentials when no scheme has claimed
// the request yet.
type basicAuthTransport struct {
	username, password string
	next               http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(t.username, t.password)
	}
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}

func (c *Client) resolve(path string) string {
	if path == "" {
		return c.baseURL.String()
	}
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseURL.String()
	}
	return c.baseURL.ResolveReference(ref).String()
}

func (c *Client) do(ctx context.Context, method, path, depth string, body string) (*multistatus, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), strings.NewReader(body))
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}
	req.Header.Set("Content-Type", `application/xml; charset="utf-8"`)
	if depth != "" {
		req.Header.Set("Depth", depth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Network(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.FromHTTPStatus(resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Network("reading multistatus body", err)
	}

	ms, err := parseMultistatus(data)
	if err != nil {
		return nil, apperr.InvalidResponse("malformed multistatus response: " + err.Error())
	}
	return ms, nil
}

// CalendarCollection is one discovered calendar.
type CalendarCollection struct {
	Href        string
	DisplayName string
	Description string
	CTag        string
}

// FindCalendars discovers calendar collections below path with a Depth-1
// PROPFIND requesting display name, resource type, description, and ctag.
func (c *Client) FindCalendars(ctx context.Context, path string) ([]CalendarCollection, error) {
	const body = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <c:calendar-description/>
    <cs:getctag/>
  </d:prop>
</d:propfind>`

	ms, err := c.do(ctx, "PROPFIND", path, "1", body)
	if err != nil {
		return nil, err
	}

	var calendars []CalendarCollection
	for _, resp := range ms.Responses {
		prop := resp.successfulProp()
		if prop == nil || !prop.ResourceType.IsCalendar() {
			continue
		}
		calendars = append(calendars, CalendarCollection{
			Href:        resp.Href,
			DisplayName: prop.DisplayName,
			Description: prop.CalendarDescription,
			CTag:        prop.CTag,
		})
	}

	c.log.Debug().Int("calendars", len(calendars)).Msg("discovered calendars")
	return calendars, nil
}

// CalendarObject is one fetched event resource.
type CalendarObject struct {
	Href string
	ETag string
	Data string
}

// QueryEvents runs a REPORT calendar-query against one calendar, filtered
// to VEVENTs overlapping [start, end).
func (c *Client) QueryEvents(ctx context.Context, calendarPath string, start, end time.Time) ([]CalendarObject, error) {
	var body bytes.Buffer
	fmt.Fprintf(&body, `<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:getetag/>
    <c:calendar-data/>
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="%s" end="%s"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`,
		start.UTC().Format(icsTimeLayout), end.UTC().Format(icsTimeLayout))

	ms, err := c.do(ctx, "REPORT", calendarPath, "1", body.String())
	if err != nil {
		return nil, err
	}

	var objects []CalendarObject
	for _, resp := range ms.Responses {
		prop := resp.successfulProp()
		if prop == nil || prop.CalendarData == "" {
			continue
		}
		objects = append(objects, CalendarObject{
			Href: resp.Href,
			ETag: prop.ETag,
			Data: prop.CalendarData,
		})
	}
	return objects, nil
}
