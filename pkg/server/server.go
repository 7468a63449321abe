// Package server assembles the embedded authorization server and the MCP
// tool surface into one HTTP handler.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/veslink/calendar-mcp/pkg/accounts"
	"github.com/veslink/calendar-mcp/pkg/clients"
	"github.com/veslink/calendar-mcp/pkg/gcal"
	"github.com/veslink/calendar-mcp/pkg/handlerutils"
	"github.com/veslink/calendar-mcp/pkg/ledger"
	"github.com/veslink/calendar-mcp/pkg/oauth/authorize"
	"github.com/veslink/calendar-mcp/pkg/oauth/callback"
	"github.com/veslink/calendar-mcp/pkg/oauth/register"
	"github.com/veslink/calendar-mcp/pkg/oauth/revoke"
	"github.com/veslink/calendar-mcp/pkg/oauth/token"
	"github.com/veslink/calendar-mcp/pkg/oauth/validate"
	"github.com/veslink/calendar-mcp/pkg/providers"
	"github.com/veslink/calendar-mcp/pkg/random"
	"github.com/veslink/calendar-mcp/pkg/ratelimit"
	"github.com/veslink/calendar-mcp/pkg/sessions"
	"github.com/veslink/calendar-mcp/pkg/snapshot"
	"github.com/veslink/calendar-mcp/pkg/tools"
	"github.com/veslink/calendar-mcp/pkg/types"
)

// Version is stamped at build time.
var Version = "dev"

type Server struct {
	config      *types.Config
	metadata    *types.OAuthMetadata
	registry    *clients.Registry
	ledger      *ledger.Ledger
	sessions    *sessions.Store
	accounts    *accounts.Manager
	calendars   *gcal.Registry
	provider    providers.Provider
	rateLimiter *ratelimit.RateLimiter
	mcp         *mcpserver.MCPServer
}

// Option overrides a default dependency. Tests use these to swap the Google
// endpoints for local stand-ins.
type Option func(*options)

type options struct {
	provider     providers.Provider
	calendarOpts []option.ClientOption
}

func WithProvider(p providers.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

func WithCalendarOptions(opts ...option.ClientOption) Option {
	return func(o *options) {
		o.calendarOpts = opts
	}
}

func New(config *types.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if config.Port == "" {
		config.Port = "8080"
	}
	if config.DataDir == "" {
		config.DataDir = "data"
	}

	clientSnap, tokenSnap, err := openSnapshots(config)
	if err != nil {
		return nil, err
	}

	gen := random.New()
	registry := clients.New(clientSnap, gen)
	tokenLedger := ledger.New(tokenSnap, gen)
	sessionStore := sessions.New(gen)

	accountManager, err := accounts.New(config.DataDir)
	if err != nil {
		return nil, err
	}

	scopesSupported := ParseScopesSupported(config.ScopesSupported)

	provider := o.provider
	if provider == nil {
		if config.GoogleClientID == "" || config.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google client ID and secret are required")
		}
		provider = providers.NewGoogle(config.GoogleClientID, config.GoogleClientSecret, googleScopes(scopesSupported))
	}

	calendars := gcal.New(provider, accountManager, o.calendarOpts...)

	mcpSrv := mcpserver.NewMCPServer("calendar-mcp", Version,
		mcpserver.WithToolCapabilities(true),
	)
	tools.RegisterCalendarTools(mcpSrv, calendars)
	tools.RegisterTaskTools(mcpSrv, calendars)
	tools.RegisterAccountTools(mcpSrv, accountManager)

	metadata := &types.OAuthMetadata{
		ResponseTypesSupported:                   []string{"code"},
		CodeChallengeMethodsSupported:            []string{"S256"},
		TokenEndpointAuthMethodsSupported:        []string{"client_secret_post", "none"},
		GrantTypesSupported:                      []string{"authorization_code", "refresh_token"},
		ScopesSupported:                          scopesSupported,
		RevocationEndpointAuthMethodsSupported:   []string{"client_secret_post", "none"},
		RegistrationEndpointAuthMethodsSupported: []string{"client_secret_post"},
	}

	return &Server{
		config:      config,
		metadata:    metadata,
		registry:    registry,
		ledger:      tokenLedger,
		sessions:    sessionStore,
		accounts:    accountManager,
		calendars:   calendars,
		provider:    provider,
		rateLimiter: ratelimit.NewRateLimiter(15*time.Minute, 5000),
		mcp:         mcpSrv,
	}, nil
}

// openSnapshots picks the persistence backend: one row per document in a
// relational database when a DSN is configured, JSON files under the data
// directory otherwise.
func openSnapshots(config *types.Config) (clientSnap, tokenSnap snapshot.Store, err error) {
	if config.DatabaseDSN != "" {
		if strings.HasPrefix(config.DatabaseDSN, "postgres://") || strings.HasPrefix(config.DatabaseDSN, "postgresql://") {
			log.Println("Using PostgreSQL for persistence")
		} else {
			log.Printf("Using SQLite for persistence at: %s", config.DatabaseDSN)
		}
		db, err := snapshot.Open(config.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return snapshot.NewDatabase(db, "clients"), snapshot.NewDatabase(db, "tokens"), nil
	}

	log.Printf("Using JSON file persistence under: %s", config.DataDir)
	clientSnap, err = snapshot.NewFile(filepath.Join(config.DataDir, "clients.json"))
	if err != nil {
		return nil, nil, err
	}
	tokenSnap, err = snapshot.NewFile(filepath.Join(config.DataDir, "tokens.json"))
	if err != nil {
		return nil, nil, err
	}
	return clientSnap, tokenSnap, nil
}

// ParseScopesSupported splits and trims a comma- or space-separated scopes
// value, falling back to the Calendar and Tasks scopes.
func ParseScopesSupported(raw string) []string {
	if raw == "" {
		return []string{
			"openid",
			"email",
			calendar.CalendarScope,
			tasks.TasksScope,
		}
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// googleScopes filters to the scopes Google understands.
func googleScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s == "openid" || s == "email" || s == "profile" || strings.HasPrefix(s, "https://") {
			out = append(out, s)
		}
	}
	return out
}

// Start launches the background expiry sweeps.
func (s *Server) Start(ctx context.Context) error {
	s.ledger.Start()
	s.sessions.Start()
	context.AfterFunc(ctx, func() {
		if err := s.Close(); err != nil {
			log.Printf("Error shutting down: %v", err)
		}
	})
	return nil
}

// Close stops the sweeps and flushes pending persistence.
func (s *Server) Close() error {
	if err := s.sessions.Close(); err != nil {
		return err
	}
	return s.ledger.Close()
}

// Addr returns the listen address from the configuration.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	authorizeHandler := authorize.NewHandler(s.registry, s.sessions, s.provider)
	callbackHandler := callback.NewHandler(s.sessions, s.ledger, s.accounts, s.calendars, s.provider)
	tokenHandler := token.NewHandler(s.registry, s.ledger)
	revokeHandler := revoke.NewHandler(s.registry, s.ledger)
	registerHandler := register.NewHandler(s.registry)
	tokenValidator := validate.NewTokenValidator(s.ledger)

	mcpHandler := mcpserver.NewStreamableHTTPServer(s.mcp,
		mcpserver.WithEndpointPath("/mcp"),
	)

	mux.HandleFunc("GET /health", s.withCORS(s.healthHandler))

	mux.HandleFunc("GET /authorize", s.withCORS(s.withRateLimit(authorizeHandler)))
	mux.HandleFunc("GET /oauth2callback", s.withCORS(s.withRateLimit(callbackHandler)))
	mux.HandleFunc("POST /token", s.withCORS(s.withRateLimit(tokenHandler)))
	mux.HandleFunc("POST /revoke", s.withCORS(s.withRateLimit(revokeHandler)))
	mux.HandleFunc("POST /register", s.withCORS(s.withRateLimit(registerHandler)))

	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.withCORS(s.oauthMetadataHandler))
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", s.withCORS(s.protectedResourceMetadataHandler))
	mux.HandleFunc("GET /.well-known/oauth-protected-resource/{path...}", s.withCORS(s.protectedResourceMetadataHandler))

	mux.HandleFunc("/mcp", s.withCORS(s.withRateLimit(tokenValidator.WithTokenValidation(mcpHandler.ServeHTTP))))
}

// Handler returns the full HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return handlers.LoggingHandler(os.Stdout, mux)
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, mcp-protocol-version")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int((12 * time.Hour).Seconds())))

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

func (s *Server) withRateLimit(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter != nil {
			clientIP := handlerutils.GetClientIP(r)
			if !s.rateLimiter.Allow(clientIP) {
				handlerutils.JSON(w, http.StatusTooManyRequests, types.OAuthError{
					Error:            "too_many_requests",
					ErrorDescription: "Rate limit exceeded",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	handlerutils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) oauthMetadataHandler(w http.ResponseWriter, r *http.Request) {
	baseURL := handlerutils.GetBaseURL(r)

	metadata := &types.OAuthMetadata{
		Issuer:                                   baseURL,
		AuthorizationEndpoint:                    fmt.Sprintf("%s/authorize", baseURL),
		ResponseTypesSupported:                   s.metadata.ResponseTypesSupported,
		CodeChallengeMethodsSupported:            s.metadata.CodeChallengeMethodsSupported,
		TokenEndpoint:                            fmt.Sprintf("%s/token", baseURL),
		TokenEndpointAuthMethodsSupported:        s.metadata.TokenEndpointAuthMethodsSupported,
		GrantTypesSupported:                      s.metadata.GrantTypesSupported,
		ScopesSupported:                          s.metadata.ScopesSupported,
		RevocationEndpoint:                       fmt.Sprintf("%s/revoke", baseURL),
		RevocationEndpointAuthMethodsSupported:   s.metadata.RevocationEndpointAuthMethodsSupported,
		RegistrationEndpoint:                     fmt.Sprintf("%s/register", baseURL),
		RegistrationEndpointAuthMethodsSupported: s.metadata.RegistrationEndpointAuthMethodsSupported,
	}

	handlerutils.JSON(w, http.StatusOK, metadata)
}

func (s *Server) protectedResourceMetadataHandler(w http.ResponseWriter, r *http.Request) {
	baseURL := handlerutils.GetBaseURL(r)

	metadata := types.OAuthProtectedResourceMetadata{
		Resource:             baseURL + "/mcp",
		AuthorizationServers: []string{baseURL},
		Scopes:               s.metadata.ScopesSupported,
		ResourceName:         "Google Calendar MCP",
	}

	handlerutils.JSON(w, http.StatusOK, metadata)
}
