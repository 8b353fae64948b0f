package toggl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/quartz"

	"toggl-earnings/internal/adapter/resilient"
	"toggl-earnings/internal/cache"
	"toggl-earnings/internal/domain"
)

const DefaultBaseURL = "https://api.track.toggl.com/api/v9/"

var (
	// ErrProjectWithoutClient means a project has no accessible client.
	ErrProjectWithoutClient = errors.New("toggl: project has no client")
	// ErrWorkspaceUnavailable means a time entry points at a workspace the
	// credential cannot read.
	ErrWorkspaceUnavailable = errors.New("toggl: workspace unavailable")
)

// Getter is the transport the client needs. *resilient.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string, headers http.Header, params url.Values, timeout time.Duration) (*resilient.Response, error)
}

type entityKey struct {
	ID          int64
	WorkspaceID int64
}

// Client implements ports.TimeTracker using the Toggl Track API v9.
// Workspace, client and project lookups are memoized for the life of the
// Client; a nil result (403 from Toggl) is memoized as well.
type Client struct {
	baseURL    string
	credential string
	http       Getter
	clock      quartz.Clock
	timeout    time.Duration
	log        *slog.Logger

	workspaces *cache.Memo[int64, *domain.Workspace]
	clients    *cache.Memo[entityKey, *domain.Client]
	projects   *cache.Memo[entityKey, *domain.Project]
}

type Option func(*clientOptions)

type clientOptions struct {
	clock     quartz.Clock
	timeout   time.Duration
	cacheSize int
	cacheTTL  time.Duration
}

func WithClock(c quartz.Clock) Option { return func(o *clientOptions) { o.clock = c } }

// WithTimeout sets the per-request timeout passed to the Getter.
func WithTimeout(d time.Duration) Option { return func(o *clientOptions) { o.timeout = d } }

// WithCache bounds each lookup cache to size entries living at most ttl.
// A size of zero keeps the caches unbounded.
func WithCache(size int, ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// NewClient returns a Toggl client. credential is the pre-encoded value of
// the Basic Authorization header, see BasicCredential.
func NewClient(baseURL, credential string, getter Getter, log *slog.Logger, opts ...Option) *Client {
	o := clientOptions{clock: quartz.NewReal(), timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:    baseURL,
		credential: credential,
		http:       getter,
		clock:      o.clock,
		timeout:    o.timeout,
		log:        log,
		workspaces: cache.NewMemo(cache.New[int64, *domain.Workspace](o.cacheSize, o.cacheTTL)),
		clients:    cache.NewMemo(cache.New[entityKey, *domain.Client](o.cacheSize, o.cacheTTL)),
		projects:   cache.NewMemo(cache.New[entityKey, *domain.Project](o.cacheSize, o.cacheTTL)),
	}
}

// BasicCredential encodes user and password for the Authorization header.
// For API tokens Toggl expects the literal password "api_token".
func BasicCredential(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}

// Workspace returns the workspace, or nil if it is not accessible.
func (c *Client) Workspace(ctx context.Context, id int64) (*domain.Workspace, error) {
	return c.workspaces.Do(id, func() (*domain.Workspace, error) {
		var raw rawWorkspace
		ok, err := c.fetch(ctx, fmt.Sprintf("workspaces/%d", id), &raw)
		if err != nil || !ok {
			return nil, err
		}
		return &domain.Workspace{
			ID:                raw.ID,
			DefaultHourlyRate: raw.DefaultHourlyRate.Decimal,
		}, nil
	})
}

// Client returns the client, or nil if it is not accessible.
func (c *Client) Client(ctx context.Context, id, workspaceID int64) (*domain.Client, error) {
	return c.clients.Do(entityKey{id, workspaceID}, func() (*domain.Client, error) {
		var raw rawClient
		ok, err := c.fetch(ctx, fmt.Sprintf("workspaces/%d/clients/%d", workspaceID, id), &raw)
		if err != nil || !ok {
			return nil, err
		}
		return &domain.Client{ID: raw.ID, Name: raw.Name, Archived: raw.Archived}, nil
	})
}

// Project returns the project with its client resolved, or nil if the project
// is not accessible. A project whose client cannot be resolved is an error.
func (c *Client) Project(ctx context.Context, id, workspaceID int64) (*domain.Project, error) {
	return c.projects.Do(entityKey{id, workspaceID}, func() (*domain.Project, error) {
		var raw rawProject
		ok, err := c.fetch(ctx, fmt.Sprintf("workspaces/%d/projects/%d", workspaceID, id), &raw)
		if err != nil || !ok {
			return nil, err
		}
		if raw.ClientID == nil || *raw.ClientID == 0 {
			return nil, fmt.Errorf("%w: project %d", ErrProjectWithoutClient, id)
		}
		client, err := c.Client(ctx, *raw.ClientID, workspaceID)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, fmt.Errorf("%w: project %d, client %d", ErrProjectWithoutClient, id, *raw.ClientID)
		}
		p := &domain.Project{ID: raw.ID, Client: *client}
		// A zero rate means "not set" and falls back to the workspace rate.
		if raw.Rate.Valid && !raw.Rate.Decimal.IsZero() {
			rate := raw.Rate.Decimal
			p.Rate = &rate
		}
		return p, nil
	})
}

// TimeEntries yields the current user's entries between from and to (dates
// only) in the order Toggl returns them. The request is sent when iteration
// starts; ranging again sends a new one.
func (c *Client) TimeEntries(ctx context.Context, from, to time.Time) iter.Seq2[domain.TimeEntry, error] {
	return func(yield func(domain.TimeEntry, error) bool) {
		params := url.Values{}
		params.Set("start_date", from.Format(time.DateOnly))
		params.Set("end_date", to.Format(time.DateOnly))

		resp, err := c.get(ctx, "me/time_entries", params)
		if err != nil {
			yield(domain.TimeEntry{}, err)
			return
		}
		var raw []rawTimeEntry
		if err := resp.JSON(&raw); err != nil {
			yield(domain.TimeEntry{}, fmt.Errorf("toggl: decode time entries: %w", err))
			return
		}
		c.log.Debug("fetched time entries",
			slog.String("from", params.Get("start_date")),
			slog.String("to", params.Get("end_date")),
			slog.Int("count", len(raw)),
		)

		for _, r := range raw {
			e, err := c.normalize(ctx, r)
			if err != nil {
				yield(domain.TimeEntry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (c *Client) normalize(ctx context.Context, r rawTimeEntry) (domain.TimeEntry, error) {
	ws, err := c.Workspace(ctx, r.WorkspaceID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if ws == nil {
		return domain.TimeEntry{}, fmt.Errorf("%w: workspace %d of time entry %d", ErrWorkspaceUnavailable, r.WorkspaceID, r.ID)
	}

	var project *domain.Project
	if r.ProjectID != nil && *r.ProjectID != 0 {
		project, err = c.Project(ctx, *r.ProjectID, r.WorkspaceID)
		if err != nil {
			return domain.TimeEntry{}, err
		}
	}

	duration, ongoing := domain.NormalizeDuration(r.Duration, r.Start, c.clock.Now())

	var description string
	if r.Description != nil {
		description = *r.Description
	}

	return domain.TimeEntry{
		ID:          r.ID,
		Billable:    r.Billable,
		Description: description,
		Start:       r.Start,
		Stop:        r.Stop,
		UserID:      r.UserID,
		DurationSec: duration,
		Deleted:     r.ServerDeletedAt != nil,
		Ongoing:     ongoing,
		Workspace:   *ws,
		Project:     project,
	}, nil
}

// fetch decodes the resource at path into v. It reports false when Toggl
// answers 403: the resource exists but this credential cannot see it.
func (c *Client) fetch(ctx context.Context, path string, v any) (bool, error) {
	resp, err := c.get(ctx, path, nil)
	if resilient.StatusCode(err) == http.StatusForbidden {
		c.log.Debug("toggl resource inaccessible", slog.String("path", path))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := resp.JSON(v); err != nil {
		return false, fmt.Errorf("toggl: decode %s: %w", path, err)
	}
	return true, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*resilient.Response, error) {
	h := http.Header{}
	h.Set("Authorization", "Basic "+c.credential)
	h.Set("Accept", "application/json")

	resp, err := c.http.Get(ctx, c.baseURL+path, h, params, c.timeout)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, &resilient.StatusError{Response: resp}
	}
	return resp, nil
}
