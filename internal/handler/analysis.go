package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/quota"
	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
)

type AnalysisHandler struct {
	forms       *store.FormStore
	submissions *store.SubmissionStore
	resolver    *rbac.Resolver
	logger      *slog.Logger
}

func NewAnalysisHandler(forms *store.FormStore, submissions *store.SubmissionStore, resolver *rbac.Resolver, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		forms:       forms,
		submissions: submissions,
		resolver:    resolver,
		logger:      logger.With("component", "analysis"),
	}
}

type fieldStats struct {
	FieldID  int64           `json:"field_id"`
	Label    string          `json:"label"`
	Type     model.FieldType `json:"type"`
	Answered int             `json:"answered"`
	FillRate float64         `json:"fill_rate"`
}

type analyticsResponse struct {
	TotalSubmissions int          `json:"total_submissions"`
	ThisMonth        int          `json:"this_month"`
	Fields           []fieldStats `json:"fields"`
}

// Summary reports submission volume and per-field fill rates for a form.
func (h *AnalysisHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if _, err := h.resolver.RequireFormAccess(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	total, err := h.submissions.CountByForm(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	thisMonth, err := h.submissions.CountSince(id, quota.MonthStart(time.Now()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	fields, err := h.forms.ListFields(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	fills, err := h.submissions.FieldFillCounts(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := analyticsResponse{
		TotalSubmissions: total,
		ThisMonth:        thisMonth,
		Fields:           make([]fieldStats, 0, len(fields)),
	}
	for _, f := range fields {
		answered := fills[f.ID]
		var rate float64
		if total > 0 {
			rate = float64(answered) / float64(total)
		}
		resp.Fields = append(resp.Fields, fieldStats{
			FieldID:  f.ID,
			Label:    f.Label,
			Type:     f.Type,
			Answered: answered,
			FillRate: rate,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
