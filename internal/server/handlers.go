package server

import (
	"net/http"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/app"
)

// handleJobCounts serves GET /api/jobs, the aggregate queue depth by state.
func handleJobCounts(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		counts, err := a.Queue.GetJobCounts(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, counts)
	}
}

// handleAgentJobs serves GET /api/agents/{userId}, the pending, delayed and
// active jobs belonging to one agent.
func handleAgentJobs(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		userID := PathParam(r, "/api/agents/", "")
		if userID == "" {
			WriteError(w, http.StatusBadRequest, "missing agent id")
			return
		}
		jobs, err := a.Queue.GetJobsForAgent(r.Context(), userID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, jobs)
	}
}

// handleWS serves GET /ws?userId=...&token=..., the event stream for one
// agent. It validates token itself rather than through the bearer-auth
// middleware, since the WebSocket handshake cannot carry an Authorization
// header from a browser's native client.
func handleWS(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			WriteError(w, http.StatusBadRequest, "missing userId")
			return
		}
		token := r.URL.Query().Get("token")
		if _, _, err := validateJWT(token, []byte(a.Config.Auth.JWTSecret)); err != nil {
			WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		a.Hub.ServeWS(userID, a.Logger)(w, r)
	}
}
