package handler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/formsmith/formsmith/internal/auth"
	"github.com/formsmith/formsmith/internal/database"
	"github.com/formsmith/formsmith/internal/email"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/plan"
	"github.com/formsmith/formsmith/internal/push"
	"github.com/formsmith/formsmith/internal/quota"
	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
	"github.com/formsmith/formsmith/internal/token"
	ws "github.com/formsmith/formsmith/internal/websocket"
)

// env wires the full handler stack onto one in-memory database.
type env struct {
	users         *store.UserStore
	teams         *store.TeamStore
	forms         *store.FormStore
	submissions   *store.SubmissionStore
	subscriptions *store.SubscriptionStore
	pushSubs      *store.PushSubscriptionStore
	resolver      *rbac.Resolver
	enforcer      *quota.Enforcer
	tokens        *token.Service
	hub           *ws.Hub
	logger        *slog.Logger
}

func newEnv(t *testing.T, limits plan.Limits) *env {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	teams := store.NewTeamStore(db)
	forms := store.NewFormStore(db)
	submissions := store.NewSubmissionStore(db)
	subscriptions := store.NewSubscriptionStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := token.NewService("test-secret")
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}

	return &env{
		users:         users,
		teams:         teams,
		forms:         forms,
		submissions:   submissions,
		subscriptions: subscriptions,
		pushSubs:      store.NewPushSubscriptionStore(db),
		resolver:      rbac.NewResolver(forms, teams),
		enforcer:      quota.NewEnforcer(plan.NewResolver(forms, subscriptions), submissions, limits),
		tokens:        tokens,
		hub:           ws.NewHub(logger),
		logger:        logger,
	}
}

func (e *env) submissionHandler() *SubmissionHandler {
	// Unconfigured email and push clients, so notifications are skipped.
	notifier := push.NewNotifier(push.NewService("", "", ""), e.pushSubs, e.logger)
	return NewSubmissionHandler(
		e.forms, e.submissions, e.users, e.teams,
		e.enforcer, e.resolver, e.hub,
		email.NewClient("", "", ""), notifier,
		e.logger,
	)
}

func (e *env) user(t *testing.T, emailAddr string) *model.User {
	t.Helper()
	u, err := e.users.Create(emailAddr, "Test", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func asUser(u *model.User) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UserID: u.ID, Role: u.Role})
}
