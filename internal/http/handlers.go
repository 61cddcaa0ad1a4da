package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/redactd/internal/breaker"
	"github.com/fyrsmithlabs/redactd/internal/detect"
	"github.com/fyrsmithlabs/redactd/internal/intelligence"
	"github.com/fyrsmithlabs/redactd/internal/privacy"
	"github.com/fyrsmithlabs/redactd/internal/session"
)

// httpError maps domain errors to HTTP status codes. Validation failures are
// the caller's fault, missing resources are 404, everything else is internal.
func httpError(err error) error {
	switch {
	case errors.Is(err, privacy.ErrValidation),
		errors.Is(err, session.ErrInvalidSessionID),
		errors.Is(err, session.ErrInvalidLevel):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, breaker.ErrUnknownBreaker):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	PrivacyLevel string            `json:"privacy_level"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// handleCreateSession creates a new anonymization session.
func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PrivacyLevel == "" {
		req.PrivacyLevel = string(detect.LevelStandard)
	}

	sess, err := s.privacy.CreateSession(c.Request().Context(), detect.Level(req.PrivacyLevel), req.Metadata)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// handleGetSession returns a session's full state.
func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.privacy.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// handleDeleteSession removes a session and its cached intelligence.
func (s *Server) handleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.privacy.DeleteSession(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	s.bridge.Forget(id)
	return c.NoContent(http.StatusNoContent)
}

// handleDeidentify anonymizes a single text.
func (s *Server) handleDeidentify(c echo.Context) error {
	var req privacy.DeidentifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.privacy.Deidentify(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// BatchRequest is the request body for POST /api/v1/deidentify/batch.
type BatchRequest struct {
	Texts     []string `json:"texts"`
	SessionID string   `json:"session_id,omitempty"`
}

// BatchItemResponse is one entry in a batch response. Failed items carry an
// error message instead of a result.
type BatchItemResponse struct {
	Text     string            `json:"text,omitempty"`
	TokenMap map[string]string `json:"token_map,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// BatchResponse is the response body for POST /api/v1/deidentify/batch.
type BatchResponse struct {
	SessionID string              `json:"session_id"`
	Items     []BatchItemResponse `json:"items"`
}

// handleDeidentifyBatch anonymizes multiple texts against one session.
func (s *Server) handleDeidentifyBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Texts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "texts field is required")
	}

	result, err := s.privacy.DeidentifyBatch(c.Request().Context(), req.Texts, req.SessionID)
	if err != nil {
		return httpError(err)
	}

	resp := BatchResponse{
		SessionID: result.SessionID,
		Items:     make([]BatchItemResponse, len(result.Items)),
	}
	for i, item := range result.Items {
		if item.Err != nil {
			resp.Items[i].Error = item.Err.Error()
			continue
		}
		resp.Items[i].Text = item.Result.Text
		resp.Items[i].TokenMap = item.Result.TokenMap
	}
	return c.JSON(http.StatusOK, resp)
}

// ReconstructRequest is the request body for POST /api/v1/reconstruct.
type ReconstructRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// handleReconstruct resolves tokens back to original values.
func (s *Server) handleReconstruct(c echo.Context) error {
	var req ReconstructRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.privacy.Reconstruct(c.Request().Context(), req.Text, req.SessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// IntelligenceRequest is the request body for POST /api/v1/intelligence.
type IntelligenceRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// handleIntelligence generates intelligence for tokenized text. Only tokens
// cross this boundary; the session's original values never leave the service.
func (s *Server) handleIntelligence(c echo.Context) error {
	var req IntelligenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id field is required")
	}

	ctx := c.Request().Context()
	sess, err := s.privacy.GetSession(ctx, req.SessionID)
	if err != nil {
		return httpError(err)
	}

	relationships := make(map[string]map[string]string, len(sess.Relationships))
	for source, rel := range sess.Relationships {
		relationships[source] = rel.Relationships
	}

	resp := s.bridge.GenerateIntelligence(ctx, &intelligence.Request{
		SessionID:     req.SessionID,
		Text:          req.Text,
		Relationships: relationships,
		Context:       sess.Context,
	})
	return c.JSON(http.StatusOK, resp)
}

// handleBreakerStatus returns a snapshot of every circuit breaker.
func (s *Server) handleBreakerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.breakers.Status())
}

// BreakerResetRequest is the request body for POST /api/v1/breakers/reset.
// An empty name resets every breaker.
type BreakerResetRequest struct {
	Name string `json:"name,omitempty"`
}

// handleBreakerReset forces breakers back to CLOSED.
func (s *Server) handleBreakerReset(c echo.Context) error {
	var req BreakerResetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" {
		s.breakers.ResetAll()
		s.logger.Info("reset all circuit breakers")
		return c.NoContent(http.StatusNoContent)
	}

	if err := s.breakers.Reset(req.Name); err != nil {
		return httpError(err)
	}
	s.logger.Info("reset circuit breaker", zap.String("name", req.Name))
	return c.NoContent(http.StatusNoContent)
}
