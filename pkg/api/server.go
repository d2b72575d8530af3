package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/skcetlabs/portal/pkg/httputil"
	"github.com/skcetlabs/portal/pkg/identity"
	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
	"github.com/skcetlabs/portal/pkg/users"
)

// AuthFlow is the browser sign-in surface: redirect to the provider,
// handle the callback, clear the session
type AuthFlow interface {
	InitiateLogin(w http.ResponseWriter, r *http.Request)
	HandleCallback(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
}

// ServerOptions wires the API server's collaborators
type ServerOptions struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *rbac.Registry
	Resolver *identity.SessionResolver
	Guard    *Guard
	Store    *users.Store

	// AuthFlow is optional; nil disables the browser sign-in routes
	AuthFlow AuthFlow
	// WebhookHandler is optional; nil disables the lifecycle ingress
	WebhookHandler http.Handler
	// WebhookMiddleware wraps the webhook route, e.g. with rate limiting
	WebhookMiddleware func(http.Handler) http.Handler

	// SelfAssignableRoles is the onboarding allow-list
	SelfAssignableRoles []rbac.Role
}

// Server is the portal's API surface
type Server struct {
	logger         *observability.Logger
	metrics        *observability.Metrics
	registry       *rbac.Registry
	resolver       *identity.SessionResolver
	guard          *Guard
	store          *users.Store
	selfAssignable map[rbac.Role]bool

	mu      sync.Mutex
	uploads []ResultUpload
}

// NewServer builds the server and its router
func NewServer(opts ServerOptions) (*Server, *mux.Router) {
	selfAssignable := make(map[rbac.Role]bool, len(opts.SelfAssignableRoles))
	for _, role := range opts.SelfAssignableRoles {
		selfAssignable[role] = true
	}
	if len(selfAssignable) == 0 {
		for _, role := range rbac.AllRoles() {
			selfAssignable[role] = true
		}
	}

	s := &Server{
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		registry:       opts.Registry,
		resolver:       opts.Resolver,
		guard:          opts.Guard,
		store:          opts.Store,
		selfAssignable: selfAssignable,
	}

	router := mux.NewRouter()

	if opts.AuthFlow != nil {
		router.HandleFunc("/sign-in", opts.AuthFlow.InitiateLogin).Methods("GET")
		router.HandleFunc("/auth/callback", opts.AuthFlow.HandleCallback).Methods("GET")
		router.HandleFunc("/sign-out", opts.AuthFlow.Logout).Methods("GET", "POST")
	}

	if opts.WebhookHandler != nil {
		webhook := opts.WebhookHandler
		if opts.WebhookMiddleware != nil {
			webhook = opts.WebhookMiddleware(webhook)
		}
		router.Handle("/api/webhooks/identity", webhook).Methods("POST")
	}

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/admin/users", s.handleListUsers).Methods("GET")
	apiRouter.HandleFunc("/admin/users", s.handleCreateUser).Methods("POST")
	apiRouter.HandleFunc("/results/upload", s.handleUploadResults).Methods("POST")
	apiRouter.HandleFunc("/results/upload", s.handleListUploads).Methods("GET")
	apiRouter.HandleFunc("/onboarding/role", s.handleAssignRole).Methods("POST")

	return s, router
}

// ResultUpload is one accepted result sheet
type ResultUpload struct {
	ID         string        `json:"id"`
	Semester   string        `json:"semester"`
	Subject    string        `json:"subject"`
	Entries    []ResultEntry `json:"entries"`
	UploadedBy string        `json:"uploaded_by"`
	UploadedAt time.Time     `json:"uploaded_at"`
}

// ResultEntry is one student's mark in an upload
type ResultEntry struct {
	StudentID string `json:"student_id"`
	Marks     int    `json:"marks"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	_, ok := s.guard.Protect(w, r, []rbac.Role{rbac.RoleSuperAdmin}, rbac.PermManageUsers)
	if !ok {
		return
	}

	limit := httputil.QueryInt(r, "limit", 50)
	offset := httputil.QueryInt(r, "offset", 0)

	list, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list users")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	total, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to count users")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	if list == nil {
		list = []users.UserRecord{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"success": true,
		"users":   list,
		"total":   total,
	})
}

type createUserRequest struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	auth, ok := s.guard.Protect(w, r, []rbac.Role{rbac.RoleSuperAdmin}, rbac.PermManageUsers)
	if !ok {
		return
	}

	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		httputil.WriteBadRequest(w, "external_id is required")
		return
	}
	role := rbac.Role(req.Role)
	if role != "" && !role.IsValid() {
		httputil.WriteBadRequest(w, "unknown role: "+req.Role)
		return
	}

	record := users.UserRecord{
		ExternalID: req.ExternalID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       role,
	}
	if err := s.store.Upsert(r.Context(), record); err != nil {
		s.logger.WithError(err).WithField("external_id", req.ExternalID).Error("Failed to create user")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"external_id": req.ExternalID,
		"role":        req.Role,
		"actor":       auth.UserID,
	}).Info("User record created")
	httputil.WriteCreated(w, map[string]interface{}{
		"success": true,
		"user":    record,
	})
}

type uploadResultsRequest struct {
	Semester string        `json:"semester"`
	Subject  string        `json:"subject"`
	Entries  []ResultEntry `json:"entries"`
}

// resultUploaderRoles may POST result sheets. The permission check still
// runs after: super_admin holds manage:results but not upload:results, so
// uploads stay with the coordinators who own them.
var resultUploaderRoles = []rbac.Role{rbac.RoleSuperAdmin, rbac.RoleExamCoordinator, rbac.RoleFaculty}

// resultViewerRoles may read uploaded sheets back. Faculty is deliberately
// absent; reads are an admin surface.
var resultViewerRoles = []rbac.Role{rbac.RoleSuperAdmin, rbac.RoleExamCoordinator}

func (s *Server) handleUploadResults(w http.ResponseWriter, r *http.Request) {
	auth, ok := s.guard.Protect(w, r, resultUploaderRoles, rbac.PermUploadResults)
	if !ok {
		return
	}

	var req uploadResultsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Semester == "" {
		httputil.WriteBadRequest(w, "semester is required")
		return
	}
	if req.Subject == "" {
		httputil.WriteBadRequest(w, "subject is required")
		return
	}
	if len(req.Entries) == 0 {
		httputil.WriteBadRequest(w, "entries must not be empty")
		return
	}
	for _, entry := range req.Entries {
		if entry.StudentID == "" {
			httputil.WriteBadRequest(w, "every entry needs a student_id")
			return
		}
	}

	upload := ResultUpload{
		ID:         uuid.NewString(),
		Semester:   req.Semester,
		Subject:    req.Subject,
		Entries:    req.Entries,
		UploadedBy: auth.UserID,
		UploadedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, upload)
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"upload_id": upload.ID,
		"semester":  upload.Semester,
		"subject":   upload.Subject,
		"entries":   len(upload.Entries),
		"actor":     auth.UserID,
	}).Info("Result sheet accepted")
	httputil.WriteCreated(w, map[string]interface{}{
		"success":  true,
		"id":       upload.ID,
		"accepted": len(upload.Entries),
	})
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	_, ok := s.guard.Protect(w, r, resultViewerRoles, rbac.PermManageResults)
	if !ok {
		return
	}

	s.mu.Lock()
	list := make([]ResultUpload, len(s.uploads))
	copy(list, s.uploads)
	s.mu.Unlock()

	httputil.WriteSuccess(w, map[string]interface{}{
		"success": true,
		"uploads": list,
		"total":   len(list),
	})
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	auth, ok := s.guard.Authenticate(w, r)
	if !ok {
		return
	}

	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role := rbac.Role(req.Role)
	if !role.IsValid() {
		httputil.WriteBadRequest(w, "unknown role: "+req.Role)
		return
	}
	if !s.selfAssignable[role] {
		httputil.WriteForbidden(w, "role is not self-assignable")
		return
	}

	if err := s.store.SetRole(r.Context(), auth.UserID, role); err != nil {
		s.logger.WithError(err).WithField("external_id", auth.UserID).Error("Failed to assign role")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to assign role")
		return
	}

	// Drop the cached principal so the new role takes effect on the next
	// request instead of after the refresh window
	if token := s.resolver.SessionToken(r); token != "" {
		s.resolver.Invalidate(token)
	}

	s.logger.WithFields(map[string]interface{}{
		"external_id": auth.UserID,
		"role":        req.Role,
	}).Info("Onboarding role assigned")
	httputil.WriteSuccess(w, map[string]interface{}{
		"success":  true,
		"role":     req.Role,
		"redirect": s.registry.DashboardFor(role),
	})
}
