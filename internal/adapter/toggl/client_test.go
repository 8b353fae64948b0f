package toggl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toggl-earnings/internal/adapter/resilient"
	"toggl-earnings/internal/domain"
)

// fakeToggl serves canned JSON per path and counts hits.
type fakeToggl struct {
	mu     sync.Mutex
	routes map[string]response
	hits   map[string]int
	query  map[string]string
}

type response struct {
	status int
	body   string
}

func newFakeToggl() *fakeToggl {
	return &fakeToggl{routes: map[string]response{}, hits: map[string]int{}, query: map[string]string{}}
}

func (f *fakeToggl) on(path string, status int, body string) {
	f.routes["/api/v9/"+path] = response{status, body}
}

func (f *fakeToggl) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits["/api/v9/"+path]
}

func (f *fakeToggl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.query[r.URL.Path] = r.URL.RawQuery
	resp, ok := f.routes[r.URL.Path]
	f.mu.Unlock()
	if r.Header.Get("Authorization") != "Basic "+BasicCredential("tok", "api_token") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func newTestClient(t *testing.T, f *fakeToggl, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	getter := resilient.NewClient(log,
		resilient.WithPolicy(resilient.DefaultPolicy(func() backoff.BackOff { return &backoff.ZeroBackOff{} })),
		resilient.WithRateLimit(10000, time.Second),
	)
	return NewClient(srv.URL+"/api/v9", BasicCredential("tok", "api_token"), getter, log, opts...)
}

func TestWorkspace_Memoized(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1", 200, `{"id":1,"default_hourly_rate":60.5}`)
	c := newTestClient(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ws, err := c.Workspace(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, ws)
		assert.Equal(t, int64(1), ws.ID)
		assert.Equal(t, "60.5", ws.DefaultHourlyRate.String())
	}
	assert.Equal(t, 1, f.count("workspaces/1"))
}

func TestClient_MemoizedPerWorkspace(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1/clients/5", 200, `{"id":5,"name":"Acme","archived":true}`)
	f.on("workspaces/2/clients/5", 200, `{"id":5,"name":"Acme 2","archived":false}`)
	c := newTestClient(t, f)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		cl, err := c.Client(ctx, 5, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.Client{ID: 5, Name: "Acme", Archived: true}, *cl)
	}
	cl, err := c.Client(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, "Acme 2", cl.Name)

	assert.Equal(t, 1, f.count("workspaces/1/clients/5"))
	assert.Equal(t, 1, f.count("workspaces/2/clients/5"))
}

func TestLookups_ForbiddenIsAbsent(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1", 403, `forbidden`)
	f.on("workspaces/1/clients/5", 403, `forbidden`)
	f.on("workspaces/1/projects/9", 403, `forbidden`)
	c := newTestClient(t, f)
	ctx := context.Background()

	ws, err := c.Workspace(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, ws)

	cl, err := c.Client(ctx, 5, 1)
	require.NoError(t, err)
	assert.Nil(t, cl)

	p, err := c.Project(ctx, 9, 1)
	require.NoError(t, err)
	assert.Nil(t, p)

	// Absent results are memoized too.
	_, _ = c.Workspace(ctx, 1)
	assert.Equal(t, 1, f.count("workspaces/1"))
}

func TestLookups_OtherStatusIsError(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1", 404, `not found`)
	c := newTestClient(t, f)

	_, err := c.Workspace(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resilient.StatusCode(err))
	assert.Equal(t, 1, f.count("workspaces/1"))
}

func TestProject_ResolvesClient(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1/projects/9", 200, `{"id":9,"rate":30,"client_id":5}`)
	f.on("workspaces/1/projects/10", 200, `{"id":10,"rate":null,"client_id":5}`)
	f.on("workspaces/1/projects/11", 200, `{"id":11,"rate":0,"client_id":5}`)
	f.on("workspaces/1/clients/5", 200, `{"id":5,"name":"Acme","archived":false}`)
	c := newTestClient(t, f)
	ctx := context.Background()

	p, err := c.Project(ctx, 9, 1)
	require.NoError(t, err)
	require.NotNil(t, p.Rate)
	assert.Equal(t, "30", p.Rate.String())
	assert.Equal(t, "Acme", p.Client.Name)

	p, err = c.Project(ctx, 10, 1)
	require.NoError(t, err)
	assert.Nil(t, p.Rate)

	p, err = c.Project(ctx, 11, 1)
	require.NoError(t, err)
	assert.Nil(t, p.Rate)

	assert.Equal(t, 1, f.count("workspaces/1/clients/5"))
}

func TestProject_WithoutClientIsFatal(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1/projects/9", 200, `{"id":9,"client_id":5}`)
	f.on("workspaces/1/clients/5", 403, `forbidden`)
	f.on("workspaces/1/projects/10", 200, `{"id":10,"client_id":null}`)
	c := newTestClient(t, f)
	ctx := context.Background()

	cl, err := c.Client(ctx, 5, 1)
	require.NoError(t, err)
	assert.Nil(t, cl)

	_, err = c.Project(ctx, 9, 1)
	require.ErrorIs(t, err, ErrProjectWithoutClient)

	_, err = c.Project(ctx, 10, 1)
	require.ErrorIs(t, err, ErrProjectWithoutClient)
}

func TestTimeEntries_Normalizes(t *testing.T) {
	clk := quartz.NewMock(t)
	now := clk.Now().UTC().Truncate(time.Second)
	start := now.Add(-90 * time.Minute)

	f := newFakeToggl()
	f.on("workspaces/1", 200, `{"id":1,"default_hourly_rate":60}`)
	f.on("workspaces/1/projects/9", 200, `{"id":9,"rate":30,"client_id":5}`)
	f.on("workspaces/1/clients/5", 200, `{"id":5,"name":"Acme","archived":false}`)
	f.on("me/time_entries", 200, fmt.Sprintf(`[
		{"id":100,"billable":true,"description":"dev","start":%q,"stop":%q,"user_id":7,"duration":1800,"server_deleted_at":null,"workspace_id":1,"project_id":9},
		{"id":101,"billable":false,"description":null,"start":%q,"user_id":7,"duration":-%d,"server_deleted_at":null,"workspace_id":1,"project_id":null},
		{"id":102,"billable":true,"description":"gone","start":%q,"stop":%q,"user_id":7,"duration":60,"server_deleted_at":%q,"workspace_id":1}
	]`,
		start.Format(time.RFC3339), start.Add(30*time.Minute).Format(time.RFC3339),
		start.Format(time.RFC3339), start.Unix(),
		start.Format(time.RFC3339), start.Add(time.Minute).Format(time.RFC3339), now.Format(time.RFC3339),
	))
	c := newTestClient(t, f, WithClock(clk))

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	var got []domain.TimeEntry
	for e, err := range c.TimeEntries(context.Background(), from, to) {
		require.NoError(t, err)
		got = append(got, e)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "end_date=2025-03-31&start_date=2025-03-01", f.query["/api/v9/me/time_entries"])

	assert.Equal(t, int64(100), got[0].ID)
	assert.Equal(t, int64(1800), got[0].DurationSec)
	assert.False(t, got[0].Ongoing)
	assert.Equal(t, "dev", got[0].Description)
	require.NotNil(t, got[0].Project)
	assert.Equal(t, int64(9), got[0].Project.ID)
	require.NotNil(t, got[0].Stop)

	assert.Equal(t, int64(101), got[1].ID)
	assert.True(t, got[1].Ongoing)
	assert.Equal(t, int64(5400), got[1].DurationSec)
	assert.Nil(t, got[1].Project)
	assert.Nil(t, got[1].Stop)
	assert.Equal(t, "", got[1].Description)
	assert.False(t, got[1].Deleted)

	assert.True(t, got[2].Deleted)
	assert.Equal(t, "60", got[2].Workspace.DefaultHourlyRate.String())

	assert.Equal(t, 1, f.count("workspaces/1"))
	assert.Equal(t, 1, f.count("workspaces/1/projects/9"))
}

func TestTimeEntries_WorkspaceUnavailableIsFatal(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1", 403, `forbidden`)
	f.on("me/time_entries", 200, `[{"id":100,"billable":true,"start":"2025-03-10T09:00:00Z","duration":60,"workspace_id":1}]`)
	c := newTestClient(t, f)

	var errs []error
	for _, err := range c.TimeEntries(context.Background(), time.Now(), time.Now()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrWorkspaceUnavailable)
}

func TestTimeEntries_RequestErrorEndsSequence(t *testing.T) {
	f := newFakeToggl()
	f.on("me/time_entries", 400, `bad request`)
	c := newTestClient(t, f)

	var n int
	for _, err := range c.TimeEntries(context.Background(), time.Now(), time.Now()) {
		n++
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resilient.StatusCode(err))
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.count("me/time_entries"))
}

func TestTimeEntries_StopsWhenConsumerBreaks(t *testing.T) {
	f := newFakeToggl()
	f.on("workspaces/1", 200, `{"id":1,"default_hourly_rate":60}`)
	f.on("workspaces/2", 200, `{"id":2,"default_hourly_rate":60}`)
	f.on("me/time_entries", 200, `[
		{"id":1,"start":"2025-03-10T09:00:00Z","duration":60,"workspace_id":1},
		{"id":2,"start":"2025-03-10T09:00:00Z","duration":60,"workspace_id":2}
	]`)
	c := newTestClient(t, f)

	for e, err := range c.TimeEntries(context.Background(), time.Now(), time.Now()) {
		require.NoError(t, err)
		assert.Equal(t, int64(1), e.ID)
		break
	}
	assert.Equal(t, 0, f.count("workspaces/2"))
}

func TestBasicCredential(t *testing.T) {
	assert.Equal(t, "dXNlcjpwYXNz", BasicCredential("user", "pass"))
}
