// Package server assembles the stores, domain services, and handlers into
// one HTTP router.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/formsmith/formsmith/internal/billing"
	"github.com/formsmith/formsmith/internal/email"
	"github.com/formsmith/formsmith/internal/handler"
	"github.com/formsmith/formsmith/internal/middleware"
	"github.com/formsmith/formsmith/internal/plan"
	"github.com/formsmith/formsmith/internal/push"
	"github.com/formsmith/formsmith/internal/quota"
	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
	"github.com/formsmith/formsmith/internal/suggest"
	"github.com/formsmith/formsmith/internal/token"
	ws "github.com/formsmith/formsmith/internal/websocket"
)

// Public submissions and auth attempts are rate limited per client IP.
const (
	submitRateLimit  = 20
	submitRateWindow = time.Minute
	authRateLimit    = 10
	authRateWindow   = time.Minute
)

type Config struct {
	BaseURL       string
	TokenSecret   string
	SecureCookies bool
	Limits        plan.Limits
	Stripe        billing.Config
	EmailClient   *email.Client
	SuggestClient *suggest.Client
	PushService   *push.Service
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	tokens      *token.Service
	rateLimiter *middleware.RateLimiter

	authH       *handler.AuthHandler
	formH       *handler.FormHandler
	submissionH *handler.SubmissionHandler
	exportH     *handler.ExportHandler
	analysisH   *handler.AnalysisHandler
	teamH       *handler.TeamHandler
	billingH    *handler.BillingHandler
	suggestH    *handler.SuggestHandler
	pushH       *handler.PushHandler

	logger *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	tokens, err := token.NewService(cfg.TokenSecret)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger)

	users := store.NewUserStore(db)
	teams := store.NewTeamStore(db)
	forms := store.NewFormStore(db)
	submissions := store.NewSubmissionStore(db)
	subscriptions := store.NewSubscriptionStore(db)
	pushSubs := store.NewPushSubscriptionStore(db)

	resolver := rbac.NewResolver(forms, teams)
	plans := plan.NewResolver(forms, subscriptions)
	enforcer := quota.NewEnforcer(plans, submissions, cfg.Limits)

	stripeClient := billing.NewClient(cfg.Stripe)
	reconciler := billing.NewReconciler(logger, users, teams, subscriptions)
	notifier := push.NewNotifier(cfg.PushService, pushSubs, logger)

	return &Server{
		db:          db,
		hub:         hub,
		tokens:      tokens,
		rateLimiter: middleware.NewRateLimiter(),
		authH:       handler.NewAuthHandler(users, tokens, cfg.SecureCookies, logger),
		formH:       handler.NewFormHandler(forms, resolver, logger),
		submissionH: handler.NewSubmissionHandler(forms, submissions, users, teams, enforcer, resolver, hub, cfg.EmailClient, notifier, logger),
		exportH:     handler.NewExportHandler(forms, submissions, resolver, logger),
		analysisH:   handler.NewAnalysisHandler(forms, submissions, resolver, logger),
		teamH:       handler.NewTeamHandler(teams, users, resolver, logger),
		billingH:    handler.NewBillingHandler(stripeClient, reconciler, users, teams, resolver, cfg.BaseURL+"/settings/billing", logger),
		suggestH:    handler.NewSuggestHandler(cfg.SuggestClient, resolver, logger),
		pushH:       handler.NewPushHandler(pushSubs, cfg.PushService, resolver, logger),
		logger:      logger,
	}, nil
}

// RateLimiter exposes the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outer := http.NewServeMux()

	// Public routes: health, auth entry points, the submission intake, and
	// the webhook. Everything else requires a session.
	outer.HandleFunc("GET /health", s.healthHandler)
	outer.HandleFunc("POST /api/auth/register", s.rateLimited(s.authH.Register, authRateLimit, authRateWindow))
	outer.HandleFunc("POST /api/auth/login", s.rateLimited(s.authH.Login, authRateLimit, authRateWindow))
	outer.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	outer.HandleFunc("POST /api/f/{public_id}", s.rateLimited(s.submissionH.PublicSubmit, submitRateLimit, submitRateWindow))
	outer.HandleFunc("POST /api/webhooks/stripe", s.billingH.Webhook)

	protected := http.NewServeMux()
	s.registerProtectedRoutes(protected)
	outer.Handle("/", middleware.RequireAuth(protected))

	var h http.Handler = outer
	h = middleware.Authenticate(s.tokens)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	mux.HandleFunc("POST /api/forms", s.formH.Create)
	mux.HandleFunc("GET /api/forms", s.formH.List)
	mux.HandleFunc("GET /api/forms/{id}", s.formH.Get)
	mux.HandleFunc("PATCH /api/forms/{id}", s.formH.Update)
	mux.HandleFunc("DELETE /api/forms/{id}", s.formH.Delete)
	mux.HandleFunc("PUT /api/forms/{id}/fields", s.formH.ReplaceFields)

	mux.HandleFunc("GET /api/forms/{id}/submissions", s.submissionH.List)
	mux.HandleFunc("GET /api/forms/{id}/usage", s.submissionH.Usage)
	mux.HandleFunc("GET /api/forms/{id}/feed", s.submissionH.Feed)
	mux.HandleFunc("GET /api/forms/{id}/export.csv", s.exportH.CSV)
	mux.HandleFunc("GET /api/forms/{id}/analytics", s.analysisH.Summary)

	mux.HandleFunc("POST /api/teams", s.teamH.Create)
	mux.HandleFunc("GET /api/teams", s.teamH.List)
	mux.HandleFunc("GET /api/teams/{id}/members", s.teamH.ListMembers)
	mux.HandleFunc("POST /api/teams/{id}/members", s.teamH.AddMember)
	mux.HandleFunc("PUT /api/teams/{id}/members/{user_id}", s.teamH.UpdateMember)
	mux.HandleFunc("DELETE /api/teams/{id}/members/{user_id}", s.teamH.RemoveMember)

	mux.HandleFunc("POST /api/billing/checkout", s.billingH.Checkout)
	mux.HandleFunc("POST /api/billing/portal", s.billingH.Portal)

	mux.HandleFunc("POST /api/suggest", s.suggestH.Fields)

	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc, limit int, window time.Duration) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, limit, window)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

// Hub exposes the live feed hub, used by tests.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}
