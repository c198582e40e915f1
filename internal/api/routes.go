package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/repositories"
	"github.com/zeipo-ai/voicegate/internal/auth"
	"github.com/zeipo-ai/voicegate/internal/metrics"
	"github.com/zeipo-ai/voicegate/internal/streaming"
	"github.com/zeipo-ai/voicegate/internal/transport"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Registry *streaming.Registry
	Socket   *transport.SocketAdapter
	Webhook  *transport.WebhookAdapter
	Issuer   *auth.TokenIssuer
	CallLog  repositories.CallLogRepository
	Logger   *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Deps) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":          "ok",
			"service":         "voicegate",
			"active_sessions": deps.Registry.Count(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Provider-facing transports
	e.GET("/ws/audio", func(c echo.Context) error {
		return socketWithAuth(deps, c)
	})
	e.POST("/webhook/voice", deps.Webhook.HandleEvent)

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/calls/token", func(c echo.Context) error {
		return issueCallToken(c, deps)
	})
	v1.GET("/calls", func(c echo.Context) error {
		return listCalls(c, deps)
	})
	v1.GET("/sessions", func(c echo.Context) error {
		return listSessions(c, deps)
	})
}

func issueCallToken(c echo.Context, deps Deps) error {
	var req CallTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "session_id is required",
		})
	}
	if deps.Issuer == nil {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error:   "no_token_issuer",
			Message: "Call token auth is not configured",
		})
	}

	token, err := deps.Issuer.GenerateCallToken(req.SessionID, req.Provider)
	if err != nil {
		deps.Logger.Error("Failed to generate call token",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate call token",
		})
	}

	return c.JSON(http.StatusOK, CallTokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		SessionID: req.SessionID,
	})
}

func listCalls(c echo.Context, deps Deps) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "session_id query parameter is required",
		})
	}
	if deps.CallLog == nil {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error:   "no_call_log",
			Message: "Call log persistence is not configured",
		})
	}

	records, err := deps.CallLog.ListBySession(c.Request().Context(), sessionID)
	if err != nil {
		deps.Logger.Error("Failed to list call records",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list call records",
		})
	}
	return c.JSON(http.StatusOK, records)
}

func listSessions(c echo.Context, deps Deps) error {
	sessions := deps.Registry.Sessions()
	out := SessionListResponse{Count: len(sessions), Sessions: []Session{}}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, Session{
			ConnectionID: s.ConnectionID,
			SessionID:    s.CallSessionID,
			Transport:    string(s.Transport),
			State:        string(s.State()),
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// socketWithAuth validates the call token before upgrading the connection.
// Providers pass it either as a Bearer header or a token query parameter,
// browsers and some PBX hooks cannot set headers on websocket dials.
func socketWithAuth(deps Deps, c echo.Context) error {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		token = c.QueryParam("token")
	}

	if deps.Issuer != nil {
		if token == "" {
			deps.Logger.Warn("WebSocket connection rejected: missing token")
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "Call token is required",
			})
		}
		if _, err := deps.Issuer.ValidateToken(token); err != nil {
			deps.Logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired call token",
			})
		}
	}

	return deps.Socket.HandleAudio(c)
}
