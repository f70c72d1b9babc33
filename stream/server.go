package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/redbtn-io/runstream"
	"github.com/redbtn-io/runstream/run"
)

const (
	// DefaultKeepaliveInterval is how often an idle stream sends a comment
	// frame to keep proxies from reaping the connection.
	DefaultKeepaliveInterval = 15 * time.Second

	// DefaultRetryMS is the reconnect delay advised to clients at connect.
	DefaultRetryMS = 3000

	// StopRetryMS is the reconnect delay sent before a terminal [DONE],
	// large enough to stop EventSource auto-reconnect for finished runs.
	StopRetryMS = 3600000
)

// Server exposes run state and event streams over HTTP. It reads through a
// run.Manager and never writes run state; the worker side owns all writes.
type Server struct {
	runs      *run.Manager
	auth      Authenticator
	logger    *slog.Logger
	keepalive time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator sets the authenticator for all endpoints.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithLogger sets the structured logger for the server.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithKeepaliveInterval overrides the idle keepalive interval.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(s *Server) { s.keepalive = d }
}

// NewServer creates a stream server over the given run manager. Without
// WithAuthenticator it accepts every request (development mode).
func NewServer(runs *run.Manager, opts ...Option) *Server {
	s := &Server{
		runs:      runs,
		auth:      NoopAuthenticator{},
		logger:    slog.Default(),
		keepalive: DefaultKeepaliveInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the server's endpoints on a gin router.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1", s.authenticate)
	v1.GET("/runs/:runId", s.handleGetRun)
	v1.GET("/runs/:runId/stream", s.handleStream)
	v1.GET("/conversations/:conversationId/run", s.handleConversationRun)
}

// Handler returns a standalone http.Handler with CORS configured for
// browser EventSource clients.
func (s *Server) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet},
		AllowHeaders:    []string{"Authorization", "Last-Event-ID", "Cache-Control"},
		MaxAge:          12 * time.Hour,
	}))
	s.RegisterRoutes(engine)
	return engine
}

// authenticate resolves the request's bearer token to an identity and
// stores it in the gin context. EventSource cannot set headers, so the
// token is also accepted as a query parameter.
func (s *Server) authenticate(c *gin.Context) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		if t, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = t
		}
	}

	identity, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set("identity", identity)
	c.Next()
}

// identity returns the authenticated identity set by the middleware.
func identityFrom(c *gin.Context) *Identity {
	v, _ := c.Get("identity")
	id, _ := v.(*Identity)
	return id
}

// authorizeRun loads the run state and enforces ownership: a run with a
// user ID is visible only to that user or to wildcard-scoped identities.
func (s *Server) authorizeRun(c *gin.Context, runID string) (*run.State, bool) {
	state, err := s.runs.Get(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, runstream.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return nil, false
		}
		s.logger.Error("run state read failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}

	identity := identityFrom(c)
	if state.UserID != "" && identity != nil &&
		identity.Subject != state.UserID && !identity.HasScope("*") {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return state, true
}

// handleGetRun returns the run's current state record.
func (s *Server) handleGetRun(c *gin.Context) {
	state, ok := s.authorizeRun(c, c.Param("runId"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleConversationRun returns the run currently active for a conversation.
func (s *Server) handleConversationRun(c *gin.Context) {
	conversationID := c.Param("conversationId")
	runID, err := s.runs.ActiveRun(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, runstream.ErrNoActiveRun) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active run"})
			return
		}
		s.logger.Error("conversation index read failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": runID})
}
