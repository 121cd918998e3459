package inspect

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/serialize"
	"github.com/emberune/taleweave/source"
)

// Server exposes the debug endpoints over echo.
type Server struct {
	echo     *echo.Echo
	registry *source.Registry
	logger   *slog.Logger
}

// ContextReport is the inspection response: the assembled snapshot's
// identity, its validation result, and the serializer's token
// accounting. The prompt itself is included so template issues are
// visible verbatim.
type ContextReport struct {
	SnapshotID    string               `json:"snapshot_id"`
	Mode          assemble.ContextMode `json:"mode"`
	Valid         bool                 `json:"valid"`
	Violations    []string             `json:"violations,omitempty"`
	Prompt        string               `json:"prompt"`
	StopSequences []string             `json:"stop_sequences"`
	Metadata      serialize.Metadata   `json:"metadata"`
}

// NewServer creates the inspect server around a source registry.
func NewServer(registry *source.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.health)
	s.echo.GET("/api/v1/context", s.inspectContext)
	s.echo.POST("/api/v1/validate", s.validateSnapshot)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// inspectContext assembles a live snapshot from the query params and
// returns its validation result plus the serialized token breakdown.
func (s *Server) inspectContext(c echo.Context) error {
	var params Params
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if params.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	snapshot := BuildSnapshot(c.Request().Context(), s.registry, params)
	violations := assemble.ValidateSnapshot(snapshot)
	serialized := serialize.SerializeContext(snapshot, serialize.Options{})

	s.logger.Debug("context inspected",
		"snapshot_id", snapshot.ID,
		"mode", snapshot.Mode,
		"violations", len(violations),
		"prompt_tokens", serialized.Metadata.PromptTokens)

	return c.JSON(http.StatusOK, ContextReport{
		SnapshotID:    snapshot.ID,
		Mode:          snapshot.Mode,
		Valid:         len(violations) == 0,
		Violations:    violations,
		Prompt:        serialized.Prompt,
		StopSequences: serialized.StopSequences,
		Metadata:      serialized.Metadata,
	})
}

// validateSnapshot re-runs mode validation for a set of params without
// serializing, a cheap preflight for client developers.
func (s *Server) validateSnapshot(c echo.Context) error {
	var params Params
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	snapshot := BuildSnapshot(c.Request().Context(), s.registry, params)
	violations := assemble.ValidateSnapshot(snapshot)
	return c.JSON(http.StatusOK, map[string]any{
		"snapshot_id": snapshot.ID,
		"mode":        snapshot.Mode,
		"valid":       len(violations) == 0,
		"violations":  violations,
	})
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("inspect server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
