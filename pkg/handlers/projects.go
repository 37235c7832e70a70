package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// ProjectsHandler handles project-related HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/projects", authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET /api/projects", authMiddleware.RequireAuth(scope(h.List)))
	mux.HandleFunc("DELETE /api/projects/{pid}", authMiddleware.RequireAuth(scope(h.Delete)))
}

// Create handles POST /api/projects.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	project, err := h.projectService.Create(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, h.logger, err, "create project")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, project)
}

// List handles GET /api/projects.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list projects")
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, h.logger, http.StatusOK, projects)
}

// Delete handles DELETE /api/projects/{pid}.
// Sessions in the project are ungrouped, not deleted.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.projectService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
