package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-analyze-service/analyzer"
	"camera-analyze-service/database"
	"camera-analyze-service/llm"
	"camera-analyze-service/metadata"
	"camera-analyze-service/models"
	"camera-analyze-service/report"
	"camera-analyze-service/storage"
	"camera-analyze-service/stubllm"
)

type fakeStore struct {
	names []string
}

func (f *fakeStore) List(ctx context.Context) ([]string, error) {
	return f.names, nil
}

func (f *fakeStore) Resolve(ctx context.Context, name string) (llm.Image, error) {
	return llm.Image{URL: "mem://" + name}, nil
}

var _ storage.Store = (*fakeStore)(nil)

func testNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Junction_%d_10_80_12_%d_20250114_093045.jpg", i, i%200)
	}
	return names
}

func setupRouter(t *testing.T, imageCount int) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stub := stubllm.NewClient()
	stub.MatchMode = stubllm.MatchAll
	composer := report.NewComposer(stub)
	a := analyzer.New(stub, &fakeStore{names: testNames(imageCount)}, metadata.NewTable(), composer, 3)

	h := NewHandler(a, composer, database.NewWithDB(db), nil, 3)

	router := gin.New()
	api := router.Group("/api/v3")
	{
		api.GET("/health", h.HealthCheck)
		api.POST("/analyze", h.Analyze)
		api.GET("/analyze/stream", h.AnalyzeStream)
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.GET("/stats", h.GetStats)
	}
	return router, mock
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(t, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v3/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAnalyzeRequiresQuery(t *testing.T) {
	router, _ := setupRouter(t, 3)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v3/analyze", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeFresh(t *testing.T) {
	router, _ := setupRouter(t, 5)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v3/analyze",
		bytes.NewBufferString(`{"query": "find lorries"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result models.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Result.TotalImages)
	assert.Equal(t, 5, resp.Result.MatchesFound)
	assert.NotEmpty(t, resp.Result.FinalAnswer)
}

func TestAnalyzeNoImages(t *testing.T) {
	router, _ := setupRouter(t, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v3/analyze",
		bytes.NewBufferString(`{"query": "find lorries"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeUnknownSession(t *testing.T) {
	router, mock := setupRouter(t, 3)

	mock.ExpectQuery("SELECT id, title, query_count, created_at, updated_at FROM sessions").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "query_count", "created_at", "updated_at"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v3/analyze",
		bytes.NewBufferString(`{"query": "find lorries", "session_id": "nope"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeStream(t *testing.T) {
	router, _ := setupRouter(t, 4)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v3/analyze/stream?query=find+lorries", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var events []models.Event
	scanner := bufio.NewScanner(w.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	assert.Equal(t, models.EventStart, events[0].Type)
	assert.Equal(t, models.EventComplete, events[len(events)-1].Type)

	progress := 0
	for _, ev := range events {
		if ev.Type == models.EventProgress {
			progress++
		}
	}
	assert.Equal(t, 4, progress)
}

func TestAnalyzeStreamRequiresQuery(t *testing.T) {
	router, _ := setupRouter(t, 3)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v3/analyze/stream", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSessionEndpoint(t *testing.T) {
	router, mock := setupRouter(t, 0)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v3/sessions", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Len(t, sess.ID, 36)
	assert.Equal(t, "New Analysis", sess.Title)
}

func TestDeleteSessionNotFound(t *testing.T) {
	router, mock := setupRouter(t, 0)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM session_turns").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM sessions").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v3/sessions/nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStats(t *testing.T) {
	router, mock := setupRouter(t, 0)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(2, 7))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v3/stats", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_sessions":2`)
	assert.Contains(t, w.Body.String(), `"total_queries":7`)
}
