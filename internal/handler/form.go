package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/formsmith/formsmith/internal/apperr"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
)

type FormHandler struct {
	forms    *store.FormStore
	resolver *rbac.Resolver
	logger   *slog.Logger
}

func NewFormHandler(forms *store.FormStore, resolver *rbac.Resolver, logger *slog.Logger) *FormHandler {
	return &FormHandler{forms: forms, resolver: resolver, logger: logger.With("component", "form")}
}

type formRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TeamID      *int64 `json:"team_id"`
}

func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	owner := model.UserOwner(p.UserID)
	if req.TeamID != nil {
		// Creating under a team needs at least editor rights there.
		if err := h.resolver.RequireTeamRole(r.Context(), *req.TeamID, model.TeamRoleEditor); err != nil {
			writeError(w, h.logger, err)
			return
		}
		owner = model.TeamOwner(*req.TeamID)
	}

	form, err := h.forms.Create(owner, req.Title, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("form created", "form_id", form.ID, "owner_kind", owner.Kind)
	writeJSON(w, http.StatusCreated, form)
}

func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	owner := model.UserOwner(p.UserID)
	if raw := r.URL.Query().Get("team_id"); raw != "" {
		teamID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid team_id"})
			return
		}
		if err := h.resolver.RequireTeamRole(r.Context(), teamID, model.TeamRoleViewer); err != nil {
			writeError(w, h.logger, err)
			return
		}
		owner = model.TeamOwner(teamID)
	}

	forms, err := h.forms.ListByOwnerWithCounts(owner)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if forms == nil {
		forms = []store.FormSummary{}
	}
	writeJSON(w, http.StatusOK, forms)
}

type formDetail struct {
	model.Form
	Fields []model.FormField `json:"fields"`
}

func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	form, err := h.resolver.RequireFormAccess(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	fields, err := h.forms.ListFields(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if fields == nil {
		fields = []model.FormField{}
	}
	writeJSON(w, http.StatusOK, formDetail{Form: *form, Fields: fields})
}

type formUpdateRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	IsPublished    *bool   `json:"is_published"`
	NotifyOnSubmit *bool   `json:"notify_on_submit"`
}

func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.requireEdit(w, r, id); err != nil {
		return
	}

	var req formUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title cannot be empty"})
		return
	}

	form, err := h.forms.Update(id, store.FormUpdate{
		Title:          req.Title,
		Description:    req.Description,
		IsPublished:    req.IsPublished,
		NotifyOnSubmit: req.NotifyOnSubmit,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.requireEdit(w, r, id); err != nil {
		return
	}

	if err := h.forms.Delete(id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("form deleted", "form_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type fieldRequest struct {
	Type     model.FieldType `json:"type"`
	Label    string          `json:"label"`
	Required bool            `json:"required"`
	Options  string          `json:"options"`
}

// ReplaceFields swaps the form's entire field set for the submitted one.
func (h *FormHandler) ReplaceFields(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.requireEdit(w, r, id); err != nil {
		return
	}

	var reqs []fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	inputs := make([]store.FieldInput, 0, len(reqs))
	for _, f := range reqs {
		f.Label = strings.TrimSpace(f.Label)
		if f.Label == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "field label is required"})
			return
		}
		if !validFieldType(f.Type) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown field type"})
			return
		}
		inputs = append(inputs, store.FieldInput{
			Type:     f.Type,
			Label:    f.Label,
			Required: f.Required,
			Options:  f.Options,
		})
	}

	fields, err := h.forms.ReplaceFields(id, inputs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if fields == nil {
		fields = []model.FormField{}
	}
	writeJSON(w, http.StatusOK, fields)
}

// requireEdit runs the read check first so the caller gets the same 401, 404,
// or 403 a read would produce, then demands edit rights on top. It writes the
// failure itself; a non-nil return just tells the caller to stop.
func (h *FormHandler) requireEdit(w http.ResponseWriter, r *http.Request, formID int64) error {
	if _, err := h.resolver.RequireFormAccess(r.Context(), formID); err != nil {
		writeError(w, h.logger, err)
		return err
	}
	ok, err := h.resolver.CanEdit(r.Context(), formID)
	if err != nil {
		writeError(w, h.logger, err)
		return err
	}
	if !ok {
		err := apperr.New(apperr.CodeForbidden)
		writeError(w, h.logger, err)
		return err
	}
	return nil
}

func validFieldType(t model.FieldType) bool {
	switch t {
	case model.FieldText, model.FieldEmail, model.FieldNumber, model.FieldTextarea,
		model.FieldSelect, model.FieldCheckbox, model.FieldRadio:
		return true
	}
	return false
}
