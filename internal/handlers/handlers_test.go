package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dreamlog/backend/internal/auth"
	"dreamlog/backend/internal/dream"
	"dreamlog/backend/internal/llm"
	"dreamlog/backend/internal/llm/providers"
)

func newTestAPI() *API {
	orch := llm.NewOrchestrator([]llm.Backend{providers.NewLexiconBackend("")}, time.Second, zap.NewNop())
	engine := dream.New(nil, orch, dream.NewSeededSource(7), zap.NewNop())
	api := NewAPI(nil, nil, nil, engine, zap.NewNop())
	api.Chain = orch.Chain()
	return api
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAnalyzeReturnsSymbolsAndPackedForm(t *testing.T) {
	api := newTestAPI()
	rec := postJSON(t, api.Analyze, `{"content":"我夢見一條蛇在水裡游","mood_level":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Analysis dream.AnalysisResult `json:"analysis"`
		Packed   string               `json:"packed"`
		Backend  string               `json:"backend"`
		Degraded bool                 `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, []string{"蛇", "水"}, payload.Analysis.Keywords)
	assert.True(t, payload.Analysis.Radar.InRange())
	assert.Contains(t, payload.Packed, dream.RadarDelimiter)

	narrative, radar, err := dream.Parse(payload.Packed)
	require.NoError(t, err)
	assert.Equal(t, payload.Analysis.Narrative, narrative)
	assert.Equal(t, payload.Analysis.Radar, radar)
	assert.NotEmpty(t, payload.Backend)
}

func TestAnalyzeAcceptsEmptyContent(t *testing.T) {
	api := newTestAPI()
	rec := postJSON(t, api.Analyze, `{"content":""}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, false, payload["degraded"])
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	api := newTestAPI()
	cases := map[string]string{
		"mood too high": `{"content":"海","mood_level":9}`,
		"mood negative": `{"content":"海","mood_level":-1}`,
		"not json":      `content=海`,
		"unknown field": `{"content":"海","colour":"blue"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postJSON(t, api.Analyze, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterValidatesBeforeStorage(t *testing.T) {
	api := newTestAPI()
	cases := map[string]string{
		"missing username": `{"password":"secret1"}`,
		"blank username":   `{"username":"   ","password":"secret1"}`,
		"short password":   `{"username":"mei","password":"123"}`,
		"long username":    `{"username":"` + strings.Repeat("夢", 33) + `","password":"secret1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postJSON(t, api.Register, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPersonalAndSavedListsRequireLogin(t *testing.T) {
	api := newTestAPI()
	for _, mode := range []string{"", modePersonal, modeSaved} {
		req := httptest.NewRequest(http.MethodGet, "/api/dreams?mode="+mode, nil)
		rec := httptest.NewRecorder()
		api.ListDreams(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "mode %q", mode)
	}
}

func TestListDreamsRejectsBadMoodFilter(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/api/dreams?mode=library&mood=6", nil)
	rec := httptest.NewRecorder()
	api.ListDreams(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDreamRequiresUserAndContent(t *testing.T) {
	api := newTestAPI()
	rec := postJSON(t, api.CreateDream, `{"content":"蛇"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/dreams", strings.NewReader(`{"content":"  "}`))
	req = req.WithContext(auth.WithUser(req.Context(), auth.User{ID: 4, Username: "mei"}))
	rec = httptest.NewRecorder()
	api.CreateDream(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/dreams", strings.NewReader(`{"content":"蛇","mood_level":7}`))
	req = req.WithContext(auth.WithUser(req.Context(), auth.User{ID: 4, Username: "mei"}))
	rec = httptest.NewRecorder()
	api.CreateDream(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildDreamQuery(t *testing.T) {
	_, _, err := buildDreamQuery(dreamFilter{Mode: modePersonal, Limit: 20})
	assert.ErrorIs(t, err, errLoginRequired)
	_, _, err = buildDreamQuery(dreamFilter{Mode: modeSaved, Limit: 20})
	assert.ErrorIs(t, err, errLoginRequired)
	_, _, err = buildDreamQuery(dreamFilter{Mode: "everything", Viewer: 1, Limit: 20})
	assert.Error(t, err)

	sql, args, err := buildDreamQuery(dreamFilter{Mode: modeLibrary, Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Contains(t, sql, "d.is_public")
	assert.Equal(t, []any{int64(0), 10, 20}, args)

	sql, args, err = buildDreamQuery(dreamFilter{Mode: modePersonal, Viewer: 3, Search: "100%_蛇", Mood: 2, Limit: 20})
	require.NoError(t, err)
	assert.Contains(t, sql, "d.user_id = $1")
	assert.Contains(t, sql, "ILIKE $2")
	assert.Contains(t, sql, "d.mood_level = $3")
	require.Len(t, args, 5)
	assert.Equal(t, int64(3), args[0])
	assert.Equal(t, `%100\%\_蛇%`, args[1])
	assert.Equal(t, 2, args[2])
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
	assert.Equal(t, "夢", escapeLike("夢"))
}

func TestListBackends(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/api/backends", nil)
	rec := httptest.NewRecorder()
	api.ListBackends(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Chain  []string                `json:"chain"`
		Health []llm.HealthCheckResult `json:"health"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, []string{"lexicon", "null"}, payload.Chain)
	assert.Empty(t, payload.Health)

	api.Health = &llm.HealthMonitor{Backends: []llm.Backend{providers.NewLexiconBackend("")}}
	api.Health.RunOnce(context.Background())
	rec = httptest.NewRecorder()
	api.ListBackends(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Health, 1)
	assert.Equal(t, "lexicon", payload.Health[0].Backend)
}

func TestReanalyzeRetriesWhileDegraded(t *testing.T) {
	api := newTestAPI()
	api.Engine = dream.New(nil, llm.NewOrchestrator(nil, 0, nil), nil, nil)
	retry, err := api.Reanalyze(context.Background(), llm.QueueMessage{UserID: 1, DreamID: 2, Content: "夢見鬼", MoodLevel: 2})
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestReanalyzeCancelledKeepsRetry(t *testing.T) {
	api := newTestAPI()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	retry, err := api.Reanalyze(ctx, llm.QueueMessage{UserID: 1, DreamID: 2, Content: "夢見鬼", MoodLevel: 2, RealityContext: "搬家"})
	assert.True(t, retry)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseID(t *testing.T) {
	id, ok := ParseID(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	for _, raw := range []string{"", "0", "-3", "abc", "9999999999999999999999"} {
		_, ok := ParseID(raw)
		assert.False(t, ok, raw)
	}
}
