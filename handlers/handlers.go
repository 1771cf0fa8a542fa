package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"camera-analyze-service/analyzer"
	"camera-analyze-service/database"
	"camera-analyze-service/metrics"
	"camera-analyze-service/models"
	"camera-analyze-service/rabbitmq"
	"camera-analyze-service/report"
	"camera-analyze-service/session"
)

type Handler struct {
	analyzer     *analyzer.Analyzer
	composer     *report.Composer
	db           *database.Database
	publisher    *rabbitmq.Publisher
	contextTurns int
}

// NewHandler wires the HTTP surface. publisher may be nil when event
// publishing is disabled.
func NewHandler(a *analyzer.Analyzer, composer *report.Composer, db *database.Database, publisher *rabbitmq.Publisher, contextTurns int) *Handler {
	return &Handler{
		analyzer:     a,
		composer:     composer,
		db:           db,
		publisher:    publisher,
		contextTurns: contextTurns,
	}
}

type analyzeRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "camera-analyze-service",
	})
}

// Analyze runs a query to completion and returns the full result. When
// the query continues an existing session it is answered from stored
// results instead of re-analyzing images.
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	sess, ok := h.loadSession(c, req.SessionID)
	if !ok {
		return
	}

	var run *models.RunResult
	if prev := h.previousResults(sess, req.Query); prev != nil {
		run = h.contextualRun(c.Request.Context(), sess, req.Query, prev)
	} else {
		var err error
		run, err = h.analyzer.Run(c.Request.Context(), req.Query)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, analyzer.ErrNoItems) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
	}

	resp := gin.H{"result": run}
	if sess != nil {
		number, err := h.persistTurn(c.Request.Context(), sess.ID, req.Query, run)
		if err != nil {
			log.WithError(err).WithField("session_id", sess.ID).Error("failed to persist turn")
		} else {
			resp["turn_number"] = number
		}
		resp["session_id"] = sess.ID
	}
	c.JSON(http.StatusOK, resp)
}

// AnalyzeStream runs a query while streaming progress as server-sent
// events. The final complete event carries the same payload Analyze
// returns.
func (h *Handler) AnalyzeStream(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	sess, ok := h.loadSession(c, c.Query("session_id"))
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	if prev := h.previousResults(sess, query); prev != nil {
		writeEvent(c, models.Event{Type: models.EventStart, Data: map[string]string{
			"message": "Answering from previous results",
		}})
		run := h.contextualRun(c.Request.Context(), sess, query, prev)
		h.finishStreamTurn(c, sess, query, run)
		return
	}

	var completed *models.RunResult
	for ev := range h.analyzer.Stream(c.Request.Context(), query) {
		if ev.Type == models.EventComplete {
			if run, ok := ev.Data.(*models.RunResult); ok {
				completed = run
			}
		}
		writeEvent(c, ev)
	}

	if completed != nil && sess != nil {
		if _, err := h.persistTurn(c.Request.Context(), sess.ID, query, completed); err != nil {
			log.WithError(err).WithField("session_id", sess.ID).Error("failed to persist turn")
		}
	}
}

func (h *Handler) finishStreamTurn(c *gin.Context, sess *models.Session, query string, run *models.RunResult) {
	writeEvent(c, models.Event{Type: models.EventComplete, Data: run})
	if sess != nil {
		if _, err := h.persistTurn(c.Request.Context(), sess.ID, query, run); err != nil {
			log.WithError(err).WithField("session_id", sess.ID).Error("failed to persist turn")
		}
	}
}

// loadSession resolves the optional session id. A missing id yields a
// nil session; an unknown id ends the request with 404.
func (h *Handler) loadSession(c *gin.Context, id string) (*models.Session, bool) {
	if id == "" {
		return nil, true
	}
	sess, err := h.db.GetSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		}
		return nil, false
	}
	return sess, true
}

// previousResults returns the stored results to answer from when the
// query is a follow-up, or nil for a fresh analysis.
func (h *Handler) previousResults(sess *models.Session, query string) *models.QueryTurn {
	if sess == nil || !session.IsFollowUp(query, len(sess.Turns)) {
		return nil
	}
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		if sess.Turns[i].Results != nil && !sess.Turns[i].Results.IsContextual {
			return &sess.Turns[i]
		}
	}
	return nil
}

func (h *Handler) contextualRun(ctx context.Context, sess *models.Session, query string, prev *models.QueryTurn) *models.RunResult {
	conversation := session.BuildContext(sess.Turns, h.contextTurns)
	answer := h.composer.ContextualAnswer(ctx, query, conversation, prev.Results)

	metrics.AnalysisRunsTotal.WithLabelValues("contextual", "success").Inc()
	return &models.RunResult{
		TotalImages:     prev.Results.TotalImages,
		MatchesFound:    prev.Results.MatchesFound,
		UniqueLocations: prev.Results.UniqueLocations,
		Stats:           prev.Results.Stats,
		FinalAnswer:     answer,
		IsContextual:    true,
	}
}

func (h *Handler) persistTurn(ctx context.Context, sessionID, query string, run *models.RunResult) (int, error) {
	turn := models.QueryTurn{
		UserQuery:   query,
		Summary:     session.Summary(run),
		KeyFindings: session.KeyFindings(run.DetailedResults),
		Results:     run,
	}
	number, err := h.db.AppendTurn(ctx, sessionID, turn, session.Title(query))
	if err != nil {
		return 0, err
	}
	if h.publisher != nil {
		if err := h.publisher.PublishRunCompleted(sessionID, number, query, run); err != nil {
			log.WithError(err).Warn("failed to publish completion event")
		}
	}
	return number, nil
}

func writeEvent(c *gin.Context, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Error("failed to encode event")
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

func (h *Handler) CreateSession(c *gin.Context) {
	sess, err := h.db.CreateSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.db.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.db.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	err := h.db.DeleteSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.db.SessionStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
