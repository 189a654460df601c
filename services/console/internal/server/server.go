package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"pumpconsole/internal/ratelimit"
	"pumpconsole/internal/util"
	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/app"
	"pumpconsole/services/console/internal/authstate"
	"pumpconsole/services/console/internal/listview"
	"pumpconsole/services/console/internal/workflow"
)

const (
	defaultLoginRateLimit = 10
	defaultGuardTimeout   = 5 * time.Second
	maxJSONBodyBytes      = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App   *app.App
	Redis redis.UniversalClient
	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics                 http.Handler
	TrustedProxies          *util.TrustedProxies
	AllowedOrigins          []string
	LoginRateLimitPerMinute int
	MaxUploadBytes          int64
	// GuardTimeout bounds how long a request waits for session restore.
	GuardTimeout time.Duration
}

// Server exposes the console operations as a JSON API.
type Server struct {
	app            *app.App
	auth           *authstate.Context
	redis          redis.UniversalClient
	router         chi.Router
	metrics        http.Handler
	trusted        *util.TrustedProxies
	origins        []string
	maxUploadBytes int64
	guardTimeout   time.Duration
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("console app required")
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = defaultLoginRateLimit
	}
	loginLimiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, ratelimit.DefaultPrefix+":login", loginLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	guardTimeout := cfg.GuardTimeout
	if guardTimeout <= 0 {
		guardTimeout = defaultGuardTimeout
	}
	s := &Server{
		app:            cfg.App,
		auth:           cfg.App.Auth(),
		redis:          cfg.Redis,
		router:         chi.NewRouter(),
		metrics:        metrics,
		trusted:        cfg.TrustedProxies,
		origins:        cfg.AllowedOrigins,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		guardTimeout:   guardTimeout,
		loginLimiter:   loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	h := util.WithRequestLog("console", s.router)
	h = util.WithRequestID(h)
	return util.WithSecurityHeaders(util.WithCORS(s.origins, h))
}

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.With(s.requireRole("")).Get("/auth/me", s.handleMe)
		r.With(s.requireRole(domain.RoleAdmin)).Post("/auth/register", s.handleRegister)
		r.Get("/route", s.handleRoute)

		// lists carry their own per-screen role check
		r.Get("/lists/{screen}", s.handleList)
		r.Delete("/lists/{screen}/{id}", s.handleListDelete)

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(domain.RoleAdmin))
			r.Get("/machines/model", s.handleModelFromPart)
			r.Post("/machines/{kind}", s.handleCreateMachine)
			r.Get("/machines/{id}", s.handleMachine)
			r.Patch("/machines/{id}", s.handleUpdateMachine)
			r.Get("/machines/{id}/service-reports", s.handleMachineReports)
			r.Get("/customers", s.handleCustomers)
			r.Get("/dashboard/service-types", s.handleServiceTypeStats)
			r.Get("/dashboard/part-numbers", s.handlePartNumberStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(""))
			r.Get("/dashboard/statistics", s.handleStatistics)
			r.Get("/dashboard/recent-activities", s.handleRecentActivities)
			r.Get("/service-reports/{id}", s.handleServiceReport)
			r.Get("/service-reports/{id}/pdf", s.handleServiceReportPDF)

			r.Post("/wizard", s.handleWizardStart)
			r.Route("/wizard/{id}", func(r chi.Router) {
				r.Get("/", s.handleWizardGet)
				r.Delete("/", s.handleWizardClose)
				r.Post("/lookup", s.handleWizardLookup)
				r.Post("/customer", s.handleWizardCustomer)
				r.Post("/cancel-customer", s.handleWizardCancelCustomer)
				r.Post("/details", s.handleWizardDetails)
				r.Post("/problem", s.handleWizardProblem)
				r.Post("/parts", s.handleWizardParts)
				r.Get("/parts/search", s.handleWizardPartSearch)
				r.Post("/files", s.handleWizardFiles)
				r.Delete("/files/{fileID}", s.handleWizardRemoveFile)
				r.Post("/next", s.handleWizardNext)
				r.Post("/back", s.handleWizardBack)
				r.Post("/submit", s.handleWizardSubmit)
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// Close releases the rate limiter.
func (s *Server) Close() error {
	return s.loginLimiter.Close()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type validationBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeAppError maps console and backend errors onto HTTP responses.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *workflow.ValidationError
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationBody{Error: verr.Error(), Fields: verr.Fields})
	case errors.As(err, &apiErr):
		writeBackendError(w, apiErr)
	case errors.Is(err, app.ErrUnknownScreen),
		errors.Is(err, app.ErrWizardNotFound),
		errors.Is(err, app.ErrUnknownMachineKind):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNothingToUpdate),
		errors.Is(err, workflow.ErrAttachmentInvalid),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrIDRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrMachineRequired),
		errors.Is(err, workflow.ErrCustomerRequired):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrAttachmentTooBig):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, workflow.ErrAttachmentType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, listview.ErrDeleteUnsupported):
		writeError(w, http.StatusMethodNotAllowed, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeBackendError(w http.ResponseWriter, err *apiclient.APIError) {
	switch err.Kind {
	case apiclient.KindNetwork:
		writeError(w, http.StatusBadGateway, err.Message)
	case apiclient.KindValidation:
		body := validationBody{Error: err.Message}
		if len(err.Fields) > 0 {
			body.Fields = make(map[string]string, len(err.Fields))
			for _, f := range err.Fields {
				body.Fields[f.Field] = f.Message
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case apiclient.KindAuth:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Message, "redirect": authstate.LoginPath})
	case apiclient.KindNotFound:
		writeError(w, http.StatusNotFound, err.Message)
	default:
		status := err.Status
		if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Message)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body required")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	d := limiter.Allow(r.Context(), key)
	if d.Allowed {
		return true
	}
	retry := int(d.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", fmt.Sprint(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 20 * 1024 * 1024
	}
	return value
}

func trimmed(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

func logger(r *http.Request) *slog.Logger {
	return util.LoggerFromContext(r.Context())
}
