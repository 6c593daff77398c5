package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/plan"
	"github.com/formsmith/formsmith/internal/push"
)

func pushHandler(e *env, configured bool) *PushHandler {
	svc := push.NewService("", "", "ops@example.com")
	if configured {
		pub, priv, _ := push.GenerateVAPIDKeys()
		svc = push.NewService(pub, priv, "ops@example.com")
	}
	return NewPushHandler(e.pushSubs, svc, e.resolver, e.logger)
}

func TestPushSubscribe(t *testing.T) {
	e := newEnv(t, plan.DefaultLimits())
	h := pushHandler(e, true)
	u := e.user(t, "alice@example.com")

	body := `{"endpoint": "https://push.example/abc", "p256dh": "key", "auth": "secret"}`
	req := httptest.NewRequest("POST", "/api/push/subscriptions", strings.NewReader(body))
	req = req.WithContext(asUser(u))
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)

	if rec.Code != 201 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var sub model.PushSubscription
	json.NewDecoder(rec.Body).Decode(&sub)
	if sub.UserID != u.ID || sub.Endpoint != "https://push.example/abc" {
		t.Errorf("sub = %+v", sub)
	}

	// Keys never appear in responses.
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("auth key must not be returned")
	}
}

func TestPushSubscribeUnauthenticated(t *testing.T) {
	e := newEnv(t, plan.DefaultLimits())
	h := pushHandler(e, true)

	req := httptest.NewRequest("POST", "/api/push/subscriptions",
		strings.NewReader(`{"endpoint": "https://push.example/abc", "p256dh": "k", "auth": "a"}`))
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPushSubscribeMissingKeys(t *testing.T) {
	e := newEnv(t, plan.DefaultLimits())
	h := pushHandler(e, true)
	u := e.user(t, "alice@example.com")

	req := httptest.NewRequest("POST", "/api/push/subscriptions",
		strings.NewReader(`{"endpoint": "https://push.example/abc"}`))
	req = req.WithContext(asUser(u))
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPushUnsubscribe(t *testing.T) {
	e := newEnv(t, plan.DefaultLimits())
	h := pushHandler(e, true)
	u := e.user(t, "alice@example.com")
	e.pushSubs.Upsert(u.ID, "https://push.example/abc", "k", "a")

	req := httptest.NewRequest("DELETE", "/api/push/subscriptions",
		strings.NewReader(`{"endpoint": "https://push.example/abc"}`))
	req = req.WithContext(asUser(u))
	rec := httptest.NewRecorder()
	h.Unsubscribe(rec, req)

	if rec.Code != 204 {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	subs, _ := e.pushSubs.ListByUser(u.ID)
	if len(subs) != 0 {
		t.Errorf("len(subs) = %d, want 0", len(subs))
	}
}

func TestPushVAPIDKey(t *testing.T) {
	e := newEnv(t, plan.DefaultLimits())

	rec := httptest.NewRecorder()
	pushHandler(e, false).VAPIDKey(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))
	if rec.Code != 404 {
		t.Fatalf("unconfigured status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	pushHandler(e, true).VAPIDKey(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["public_key"] == "" {
		t.Error("expected a public key")
	}
}
