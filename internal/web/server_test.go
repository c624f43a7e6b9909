package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/domain"
	"github.com/Proton-105/workout-ledger/internal/health"
	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/ledger"
	"github.com/Proton-105/workout-ledger/internal/lifecycle"
	"github.com/Proton-105/workout-ledger/internal/middleware"
	"github.com/Proton-105/workout-ledger/internal/ratelimit"
	"github.com/Proton-105/workout-ledger/internal/repository"
	"github.com/Proton-105/workout-ledger/internal/testutil"
	"github.com/Proton-105/workout-ledger/internal/user"
	"github.com/Proton-105/workout-ledger/pkg/config"
)

// testNow falls on the 14th in UTC and the 15th in Tokyo.
var (
	tokyo, _ = time.LoadLocation("Asia/Tokyo")
	testNow  = time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)
)

type fixture struct {
	handler http.Handler
	ledger  *ledger.Service
}

func newFixture(t *testing.T, mutationLimit int) *fixture {
	t.Helper()

	db, dialect := testutil.OpenSQLite(t)
	store := repository.NewSQLStore(db, dialect, testutil.Logger())
	clock := func() time.Time { return testNow }
	led := ledger.NewService(store, testutil.Logger(), ledger.WithClock(clock))
	users := user.NewService(led, nil, testutil.Logger())

	require.NoError(t, users.Bootstrap(context.Background(), []domain.User{
		{ID: "a", DisplayName: "Alex"},
		{ID: "b", DisplayName: "Sam"},
	}))

	checker := health.NewChecker(testutil.Logger(), time.Second)
	checker.AddCheck("database", health.NewDBChecker(db))

	guard := ratelimit.NewGuard(ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		PerClient: config.RateLimitRule{Limit: 1000, Window: "1m"},
		Mutations: config.RateLimitRule{Limit: mutationLimit, Window: "1m"},
	}), ratelimit.NewMemoryLimiter(testutil.Logger()))

	srv, err := NewServer(Deps{
		Ledger:      led,
		Users:       users,
		Probes:      lifecycle.NewProbes(checker, testutil.Logger()),
		Guard:       guard,
		Idempotency: idempotency.NewManager(idempotency.NewMemoryStore(), testutil.Logger()),
		Config:      config.WebConfig{GridWeeks: 4, CookieName: "ledger_user"},
		Location:    tokyo,
		Log:         testutil.Logger(),
		Now:         clock,
	})
	require.NoError(t, err)

	return &fixture{handler: srv.Handler(), ledger: led}
}

func (f *fixture) do(method, target string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

var jsonAccept = map[string]string{"Accept": "application/json"}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestIndex_RendersBoards(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodGet, "/", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Alex")
	assert.Contains(t, body, "Sam")
	assert.Contains(t, body, "Today is 2025-03-15")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSelect_SetsCookie(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodPost, "/select", url.Values{"user": {"b"}}, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "ledger_user", cookies[0].Name)
	assert.Equal(t, "b", cookies[0].Value)

	rec = f.do(http.MethodPost, "/select", url.Values{"user": {"zzz"}}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordWorkout_UsesTodayInConfiguredZone(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}}, jsonAccept)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[recordResponse](t, rec)
	assert.Equal(t, "2025-03-15", resp.Date.String())
	assert.Equal(t, ledger.OutcomeRecorded, resp.Outcome)
	assert.True(t, resp.Changed)
	assert.Equal(t, 1, resp.ConsecWorkout)

	rec = f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}}, jsonAccept)
	resp = decode[recordResponse](t, rec)
	assert.Equal(t, ledger.OutcomeAlreadyRecorded, resp.Outcome)
	assert.False(t, resp.Changed)
}

func TestRecord_RetroactiveDateAndSkip(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}, "date": {"2025-03-14"}}, jsonAccept)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}}, jsonAccept)
	resp := decode[recordResponse](t, rec)
	assert.Equal(t, 2, resp.ConsecWorkout)
	assert.Equal(t, domain.MaxSkipPoints, resp.SkipPoints)

	rec = f.do(http.MethodPost, "/skip", url.Values{"user": {"b"}}, jsonAccept)
	resp = decode[recordResponse](t, rec)
	assert.Equal(t, ledger.OutcomeRecorded, resp.Outcome)
	assert.Equal(t, 1, resp.SkipPoints)
	assert.Equal(t, 0, resp.ConsecWorkout)
}

func TestRecord_HTMLRedirects(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodPost, "/skip", url.Values{"user": {"a"}}, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?outcome=recorded", rec.Header().Get("Location"))
}

func TestRecord_Validation(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}, "date": {"15/03/2025"}}, jsonAccept)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[errorResponse](t, rec)
	assert.Equal(t, "E100", errResp.Code)

	rec = f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}, "date": {"2025-03-16"}}, jsonAccept)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/workout", url.Values{"user": {"ghost"}}, jsonAccept)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecord_IdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t, 100)
	headers := map[string]string{"Accept": "application/json", middleware.IdempotencyKeyHeader: "retry-1"}

	first := f.do(http.MethodPost, "/skip", url.Values{"user": {"a"}}, headers)
	second := f.do(http.MethodPost, "/skip", url.Values{"user": {"a"}}, headers)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(middleware.ReplayedHeader))

	profile, err := f.ledger.Profile(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.State.SkipPoints)
}

func TestRecord_IdempotencyKeyIsPerTargetUser(t *testing.T) {
	f := newFixture(t, 100)
	headers := map[string]string{
		"Accept":                        "application/json",
		"Cookie":                        "ledger_user=a",
		middleware.IdempotencyKeyHeader: "shared-key",
	}

	first := f.do(http.MethodPost, "/skip", url.Values{"user": {"a"}}, headers)
	second := f.do(http.MethodPost, "/skip", url.Values{"user": {"b"}}, headers)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Empty(t, second.Header().Get(middleware.ReplayedHeader))

	for _, id := range []string{"a", "b"} {
		profile, err := f.ledger.Profile(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, profile.State.SkipPoints, id)
	}
}

func TestRecord_MutationRateLimit(t *testing.T) {
	f := newFixture(t, 1)
	cookie := map[string]string{"Accept": "application/json", "Cookie": "ledger_user=a"}

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/workout", url.Values{}, cookie).Code)

	rec := f.do(http.MethodPost, "/skip", url.Values{}, cookie)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := map[string]string{"Accept": "application/json", "Cookie": "ledger_user=b"}
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/workout", url.Values{}, other).Code)
}

func TestRename(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodPost, "/users/a/name", url.Values{"name": {"Lex"}}, jsonAccept)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lex", decode[domain.User](t, rec).DisplayName)

	rec = f.do(http.MethodPost, "/users/a/name", url.Values{"name": {""}}, jsonAccept)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/users/ghost/name", url.Values{"name": {"x"}}, jsonAccept)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI(t *testing.T) {
	f := newFixture(t, 100)
	f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}, "date": {"2025-03-10"}}, jsonAccept)
	f.do(http.MethodPost, "/workout", url.Values{"user": {"a"}, "date": {"2025-03-12"}}, jsonAccept)

	rec := f.do(http.MethodGet, "/api/users", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]apiUser](t, rec)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ID)
	assert.Equal(t, 1, users[0].ConsecWorkout)

	rec = f.do(http.MethodGet, "/api/users/a/days", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.DayRecord](t, rec), 2)

	rec = f.do(http.MethodGet, "/api/users/a/days?from=2025-03-11&to=2025-03-31", nil, nil)
	assert.Len(t, decode[[]domain.DayRecord](t, rec), 1)

	rec = f.do(http.MethodGet, "/api/users/b/days", nil, nil)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = f.do(http.MethodGet, "/api/users/a/days?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/users/zzz/days", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, 100)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil, nil).Code)

	rec := f.do(http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[health.Report](t, rec)
	assert.True(t, report.Healthy)
	assert.Equal(t, health.StatusOK, report.Components["database"])

	rec = f.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
