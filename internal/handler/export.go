package handler

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
)

type ExportHandler struct {
	forms       *store.FormStore
	submissions *store.SubmissionStore
	resolver    *rbac.Resolver
	logger      *slog.Logger
}

func NewExportHandler(forms *store.FormStore, submissions *store.SubmissionStore, resolver *rbac.Resolver, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		forms:       forms,
		submissions: submissions,
		resolver:    resolver,
		logger:      logger.With("component", "export"),
	}
}

// CSV streams a form's submissions as a CSV file: one column per field in
// display order, plus submitted_at. Answers for fields that have since been
// deleted are omitted.
func (h *ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
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
	details, err := h.submissions.ListByForm(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="form-%d-submissions.csv"`, form.ID))

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		header = append(header, f.Label)
	}
	header = append(header, "submitted_at")
	if err := cw.Write(header); err != nil {
		h.logger.Error("write csv header", "error", err)
		return
	}

	colByField := make(map[int64]int, len(fields))
	for i, f := range fields {
		colByField[f.ID] = i
	}

	for _, d := range details {
		row := make([]string, len(fields)+1)
		for _, a := range d.Answers {
			if col, ok := colByField[a.FieldID]; ok {
				row[col] = a.Value
			}
		}
		row[len(fields)] = d.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
		if err := cw.Write(row); err != nil {
			h.logger.Error("write csv row", "submission_id", d.ID, "error", err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("flush csv", "error", err)
	}
}
