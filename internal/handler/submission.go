package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/formsmith/formsmith/internal/email"
	"github.com/formsmith/formsmith/internal/middleware"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/push"
	"github.com/formsmith/formsmith/internal/quota"
	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
	ws "github.com/formsmith/formsmith/internal/websocket"
)

const notifyTimeout = 15 * time.Second

type SubmissionHandler struct {
	forms       *store.FormStore
	submissions *store.SubmissionStore
	users       *store.UserStore
	teams       *store.TeamStore
	enforcer    *quota.Enforcer
	resolver    *rbac.Resolver
	hub         *ws.Hub
	emailClient *email.Client
	notifier    *push.Notifier
	logger      *slog.Logger
}

func NewSubmissionHandler(
	forms *store.FormStore,
	submissions *store.SubmissionStore,
	users *store.UserStore,
	teams *store.TeamStore,
	enforcer *quota.Enforcer,
	resolver *rbac.Resolver,
	hub *ws.Hub,
	emailClient *email.Client,
	notifier *push.Notifier,
	logger *slog.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		forms:       forms,
		submissions: submissions,
		users:       users,
		teams:       teams,
		enforcer:    enforcer,
		resolver:    resolver,
		hub:         hub,
		emailClient: emailClient,
		notifier:    notifier,
		logger:      logger.With("component", "submission"),
	}
}

// PublicSubmit accepts a submission on a published form, keyed by the form's
// public ID. It is the only unauthenticated write in the API.
func (h *SubmissionHandler) PublicSubmit(w http.ResponseWriter, r *http.Request) {
	form, err := h.forms.GetByPublicID(r.PathValue("public_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	// An unpublished form is indistinguishable from a missing one.
	if form == nil || !form.IsPublished {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
		return
	}

	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	fields, err := h.forms.ListFields(form.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	answers, problem := buildAnswers(fields, values)
	if problem != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": problem})
		return
	}

	sub, err := h.enforcer.RecordSubmission(form.ID, middleware.RealIP(r), r.UserAgent(), answers)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(ws.NewSubmissionMessage(form.ID, sub.ID, sub.CreatedAt))
	if form.NotifyOnSubmit {
		if h.emailClient.Configured() {
			go h.notifyOwner(form)
		}
		if h.notifier.Configured() {
			go h.notifyPush(form)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": sub.ID})
}

// buildAnswers validates submitted values against the form's field set. Keys
// are field IDs in decimal. Unknown keys are rejected, missing required
// fields are rejected, and optional fields default to empty.
func buildAnswers(fields []model.FormField, values map[string]string) ([]store.AnswerInput, string) {
	byKey := make(map[string]model.FormField, len(fields))
	for _, f := range fields {
		byKey[formatFieldID(f.ID)] = f
	}

	for key := range values {
		if _, ok := byKey[key]; !ok {
			return nil, "unknown field: " + key
		}
	}

	answers := make([]store.AnswerInput, 0, len(fields))
	for _, f := range fields {
		v := strings.TrimSpace(values[formatFieldID(f.ID)])
		if f.Required && v == "" {
			return nil, "missing required field: " + f.Label
		}
		answers = append(answers, store.AnswerInput{FieldID: f.ID, Value: v})
	}
	return answers, ""
}

// List returns a form's submissions with their answers, newest first.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if _, err := h.resolver.RequireFormAccess(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	details, err := h.submissions.ListByForm(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if details == nil {
		details = []store.Detail{}
	}
	writeJSON(w, http.StatusOK, details)
}

// Usage reports the form's month-to-date submission count against its plan.
func (h *SubmissionHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if _, err := h.resolver.RequireFormAccess(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	u, err := h.enforcer.Usage(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Feed upgrades to a WebSocket streaming the form's new submissions.
func (h *SubmissionHandler) Feed(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if _, err := h.resolver.RequireFormAccess(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ws.Serve(h.hub, id, w, r)
}

// notifyOwner emails whoever should hear about the submission: the owning
// user, or the owning team's owner. Failures are logged and dropped.
func (h *SubmissionHandler) notifyOwner(form *model.Form) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	recipient, err := h.ownerEmail(form.Owner)
	if err != nil {
		h.logger.Error("resolve notification recipient", "form_id", form.ID, "error", err)
		return
	}
	if recipient == "" {
		return
	}

	if err := h.emailClient.SendSubmissionNotification(ctx, recipient, form.Title, form.ID); err != nil {
		h.logger.Error("send submission notification", "form_id", form.ID, "error", err)
	}
}

// notifyPush pushes a browser notification to the owning user, or to every
// member of the owning team.
func (h *SubmissionHandler) notifyPush(form *model.Form) {
	recipients, err := h.ownerUserIDs(form.Owner)
	if err != nil {
		h.logger.Error("resolve push recipients", "form_id", form.ID, "error", err)
		return
	}
	h.notifier.Notify(recipients, push.NewSubmissionPayload(form.Title, form.ID))
}

func (h *SubmissionHandler) ownerUserIDs(owner model.OwnerRef) ([]int64, error) {
	if owner.Kind == model.OwnerUser {
		return []int64{owner.ID}, nil
	}
	members, err := h.teams.ListMembers(owner.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (h *SubmissionHandler) ownerEmail(owner model.OwnerRef) (string, error) {
	switch owner.Kind {
	case model.OwnerUser:
		u, err := h.users.GetByID(owner.ID)
		if err != nil || u == nil {
			return "", err
		}
		return u.Email, nil
	case model.OwnerTeam:
		t, err := h.teams.GetByID(owner.ID)
		if err != nil || t == nil {
			return "", err
		}
		u, err := h.users.GetByID(t.OwnerUserID)
		if err != nil || u == nil {
			return "", err
		}
		return u.Email, nil
	}
	return "", nil
}

func formatFieldID(id int64) string {
	return strconv.FormatInt(id, 10)
}
