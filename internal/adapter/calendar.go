package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/stellarlinkco/standup/internal/registry"
	"github.com/stellarlinkco/standup/internal/report"
)

const (
	calendarScope   = "https://www.googleapis.com/auth/calendar.readonly"
	calendarBaseURL = "https://www.googleapis.com/calendar/v3"
)

var meetingURLPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// GoogleCalendar reads today's events from the Google Calendar REST API
// using installed-app OAuth2 credentials and a previously issued token.
// The interactive authorization flow happens out of band; this adapter
// only refreshes.
type GoogleCalendar struct {
	credsFile string
	tokenFile string
	baseURL   string

	mu         sync.Mutex
	conf       *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	now        func() time.Time
}

func NewGoogleCalendar(credsFile, tokenFile string) *GoogleCalendar {
	return &GoogleCalendar{
		credsFile:  credsFile,
		tokenFile:  tokenFile,
		baseURL:    calendarBaseURL,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
}

func (g *GoogleCalendar) Name() string { return "calendar" }

func (g *GoogleCalendar) Connect(ctx context.Context) error {
	credsData, err := os.ReadFile(g.credsFile)
	if err != nil {
		return &ConnectionError{Adapter: g.Name(), Err: fmt.Errorf("read credentials: %w", err)}
	}
	conf, err := google.ConfigFromJSON(credsData, calendarScope)
	if err != nil {
		return &ConnectionError{Adapter: g.Name(), Err: fmt.Errorf("parse credentials: %w", err)}
	}

	tokenData, err := os.ReadFile(g.tokenFile)
	if err != nil {
		return &ConnectionError{Adapter: g.Name(), Err: fmt.Errorf("read token (run the authorization flow first): %w", err)}
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(tokenData, token); err != nil {
		return &ConnectionError{Adapter: g.Name(), Err: fmt.Errorf("parse token: %w", err)}
	}

	g.mu.Lock()
	g.conf = conf
	g.token = token
	g.mu.Unlock()
	return nil
}

func (g *GoogleCalendar) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token != nil
}

func (g *GoogleCalendar) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conf = nil
	g.token = nil
	return nil
}

// eventItem mirrors the slice of the events.list response we consume.
type eventItem struct {
	Summary string `json:"summary"`
	Start   struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	ConferenceData struct {
		EntryPoints []struct {
			EntryPointType string `json:"entryPointType"`
			URI            string `json:"uri"`
		} `json:"entryPoints"`
	} `json:"conferenceData"`
}

// TodayEvents lists today's events from the primary calendar, ordered
// by start time. An expired token is refreshed silently, at most once.
func (g *GoogleCalendar) TodayEvents(ctx context.Context) ([]report.Event, error) {
	g.mu.Lock()
	conf, token := g.conf, g.token
	g.mu.Unlock()
	if token == nil {
		return nil, &ProviderError{Err: fmt.Errorf("calendar not connected")}
	}

	if !token.Valid() {
		refreshed, err := g.refresh(ctx, conf, token)
		if err != nil {
			return nil, &ProviderError{Err: fmt.Errorf("refresh token: %w", err)}
		}
		token = refreshed
	}

	now := g.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	items, status, err := g.listEvents(ctx, token, dayStart, dayEnd)
	if status == http.StatusUnauthorized {
		// Token rejected despite looking valid; refresh once and retry.
		refreshed, rerr := g.refresh(ctx, conf, token)
		if rerr != nil {
			return nil, &ProviderError{Err: fmt.Errorf("refresh token: %w", rerr)}
		}
		items, status, err = g.listEvents(ctx, refreshed, dayStart, dayEnd)
	}
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	if status != http.StatusOK {
		return nil, &ProviderError{Err: fmt.Errorf("events list returned status %d", status)}
	}

	events := make([]report.Event, 0, len(items))
	for _, item := range items {
		events = append(events, parseEvent(item))
	}
	return events, nil
}

func (g *GoogleCalendar) listEvents(ctx context.Context, token *oauth2.Token, timeMin, timeMax time.Time) ([]eventItem, int, error) {
	q := url.Values{}
	q.Set("timeMin", timeMin.Format(time.RFC3339))
	q.Set("timeMax", timeMax.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	req, err := http.NewRequestWithContext(ctx, "GET",
		g.baseURL+"/calendars/primary/events?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create events request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var result struct {
		Items []eventItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode events response: %w", err)
	}
	return result.Items, resp.StatusCode, nil
}

func (g *GoogleCalendar) refresh(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (*oauth2.Token, error) {
	expired := *token
	expired.Expiry = time.Now().Add(-time.Hour)
	fresh, err := conf.TokenSource(ctx, &expired).Token()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.token = fresh
	g.mu.Unlock()

	if data, err := json.Marshal(fresh); err == nil {
		if werr := os.WriteFile(g.tokenFile, data, 0600); werr != nil {
			log.Printf("[calendar] persist refreshed token: %v", werr)
		}
	}
	return fresh, nil
}

func parseEvent(item eventItem) report.Event {
	event := report.Event{
		Summary:     item.Summary,
		Attendees:   len(item.Attendees),
		Location:    item.Location,
		MeetingLink: extractMeetingLink(item),
	}
	if event.Summary == "" {
		event.Summary = "No title"
	}

	switch {
	case item.Start.DateTime != "":
		if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			event.Start = t
		}
	case item.Start.Date != "":
		event.AllDay = true
		if t, err := time.Parse("2006-01-02", item.Start.Date); err == nil {
			event.Start = t
		}
	}
	return event
}

func extractMeetingLink(item eventItem) string {
	for _, entry := range item.ConferenceData.EntryPoints {
		if entry.EntryPointType == "video" {
			return entry.URI
		}
	}
	for _, u := range meetingURLPattern.FindAllString(item.Description, -1) {
		if strings.Contains(u, "zoom.us") || strings.Contains(u, "meet.google.com") {
			return u
		}
	}
	return ""
}

func (g *GoogleCalendar) RegisterTools(reg *registry.Registry) error {
	return reg.Register("get_today_events", func(ctx context.Context, args ...any) (any, error) {
		return g.TodayEvents(ctx)
	})
}
