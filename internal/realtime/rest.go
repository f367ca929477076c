package realtime

import (
	"encoding/json"
	"net/http"

	"simplic/internal/errs"
	"simplic/internal/project"
	"simplic/internal/protocol"
)

type createProjectRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorResponse{Error: errs.Notice(err), Code: protocol.CodeOf(err)})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: protocol.ErrInvalidMessage})
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.NotFound, errs.ToolNotFound, errs.EntryMissing:
		return http.StatusNotFound
	case errs.AlreadyExists, errs.NameCollision, errs.Busy:
		return http.StatusConflict
	case errs.InvalidName:
		return http.StatusBadRequest
	case errs.NotImplemented:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.ws.ListProjects(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []project.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	typ := project.PyToExe
	if req.Type != "" {
		t, err := project.ParseType(req.Type)
		if err != nil {
			writeError(w, err)
			return
		}
		typ = t
	}

	opened, err := s.ws.CreateProject(r.Context(), req.Name, typ)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, opened.Project)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.ws.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.ws.Jobs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleJobOutput returns the retained output of a job as plain text.
func (s *Server) handleJobOutput(w http.ResponseWriter, r *http.Request) {
	job, err := s.ws.Job(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(job.Transcript().Bytes())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.CancelJob(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}
