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

type TeamHandler struct {
	teams    *store.TeamStore
	users    *store.UserStore
	resolver *rbac.Resolver
	logger   *slog.Logger
}

func NewTeamHandler(teams *store.TeamStore, users *store.UserStore, resolver *rbac.Resolver, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{teams: teams, users: users, resolver: resolver, logger: logger.With("component", "team")}
}

type teamRequest struct {
	Name string `json:"name"`
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req teamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	team, err := h.teams.Create(req.Name, p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("team created", "team_id", team.ID, "owner", p.UserID)
	writeJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	teams, err := h.teams.ListTeamsForUser(p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if teams == nil {
		teams = []model.Team{}
	}
	writeJSON(w, http.StatusOK, teams)
}

func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	teamID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.resolver.RequireTeamRole(r.Context(), teamID, model.TeamRoleViewer); err != nil {
		writeError(w, h.logger, err)
		return
	}

	members, err := h.teams.ListMembers(teamID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.TeamMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	Email string         `json:"email"`
	Role  model.TeamRole `json:"role"`
}

func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.resolver.RequireTeamRole(r.Context(), teamID, model.TeamRoleOwner); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Role.Rank() == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role"})
		return
	}

	u, err := h.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if u == nil {
		writeError(w, h.logger, apperr.New(apperr.CodeNotFound))
		return
	}

	member, err := h.teams.AddMember(teamID, u.ID, req.Role)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already a member"})
		return
	}
	h.logger.Info("member added", "team_id", teamID, "user_id", u.ID, "role", req.Role)
	writeJSON(w, http.StatusCreated, member)
}

type updateMemberRequest struct {
	Role model.TeamRole `json:"role"`
}

func (h *TeamHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}
	if err := h.resolver.RequireTeamRole(r.Context(), teamID, model.TeamRoleOwner); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Role.Rank() == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role"})
		return
	}
	if h.isTeamOwner(w, teamID, userID) {
		return
	}

	member, err := h.teams.UpdateMemberRole(teamID, userID, req.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if member == nil {
		writeError(w, h.logger, apperr.New(apperr.CodeNotFound))
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}
	if err := h.resolver.RequireTeamRole(r.Context(), teamID, model.TeamRoleOwner); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if h.isTeamOwner(w, teamID, userID) {
		return
	}

	if err := h.teams.RemoveMember(teamID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("member removed", "team_id", teamID, "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamHandler) memberParams(w http.ResponseWriter, r *http.Request) (teamID, userID int64, ok bool) {
	teamID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, 0, false
	}
	userID, err = strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return 0, 0, false
	}
	return teamID, userID, true
}

// isTeamOwner writes a 400 and returns true when the target is the team's
// owning user, whose membership can be neither demoted nor removed.
func (h *TeamHandler) isTeamOwner(w http.ResponseWriter, teamID, userID int64) bool {
	team, err := h.teams.GetByID(teamID)
	if err != nil {
		writeError(w, h.logger, err)
		return true
	}
	if team != nil && team.OwnerUserID == userID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot modify the team owner"})
		return true
	}
	return false
}
