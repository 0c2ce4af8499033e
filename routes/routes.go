package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jansunwai/handler"
	"jansunwai/middleware"
	"jansunwai/models"
	"jansunwai/service"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	lifecycle *service.LifecycleService,
	resolution *service.ResolutionService,
	intake *service.IntakeService,
	auth *service.AuthService,
	attachments *service.AttachmentService,
	jwtSecret string,
	webhookToken string,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.CORS, middleware.Metrics)

	complaintHandler := handler.NewComplaintHandler(lifecycle)
	resolutionHandler := handler.NewResolutionHandler(resolution)
	adminHandler := handler.NewAdminHandler(lifecycle, auth)
	authHandler := handler.NewAuthHandler(auth)
	intakeHandler := handler.NewIntakeHandler(intake, webhookToken)
	publicHandler := handler.NewPublicHandler(lifecycle, attachments)

	authMiddleware := middleware.NewAuthMiddleware(jwtSecret)
	requireAuth := authMiddleware.RequireAuth
	adminOnly := authMiddleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)
	deptHeadUp := authMiddleware.RequireRole(models.RoleDeptHead, models.RoleAdmin, models.RoleSuperAdmin)
	deptHeadOnly := authMiddleware.RequireRole(models.RoleDeptHead)

	// Open surfaces
	router.HandleFunc("/health", publicHandler.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/attachments/{handle}", publicHandler.VerifyAttachment).Methods("GET")

	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	apiV1.HandleFunc("/public/complaints/{number}", publicHandler.TrackComplaint).Methods("GET")
	apiV1.HandleFunc("/intake/webhook", intakeHandler.Webhook).Methods("POST")

	// Attachment handles (any authenticated identity)
	apiV1.Handle("/attachments", requireAuth(http.HandlerFunc(publicHandler.MintAttachmentHandle))).Methods("POST")

	// Complaint lifecycle (authenticated; role scoping inside the services)
	complaints := apiV1.PathPrefix("/complaints").Subrouter()
	complaints.Handle("", requireAuth(http.HandlerFunc(complaintHandler.List))).Methods("GET")
	complaints.Handle("", requireAuth(http.HandlerFunc(complaintHandler.Create))).Methods("POST")
	complaints.Handle("/nearby", requireAuth(http.HandlerFunc(complaintHandler.Nearby))).Methods("GET")
	complaints.Handle("/{id}", requireAuth(http.HandlerFunc(complaintHandler.Get))).Methods("GET")
	complaints.Handle("/{id}/state", requireAuth(http.HandlerFunc(complaintHandler.Transition))).Methods("POST")
	complaints.Handle("/{id}/transitions", requireAuth(http.HandlerFunc(complaintHandler.AvailableTransitions))).Methods("GET")
	complaints.Handle("/{id}/history", requireAuth(http.HandlerFunc(complaintHandler.History))).Methods("GET")
	complaints.Handle("/{id}/upvote", requireAuth(http.HandlerFunc(complaintHandler.Upvote))).Methods("POST")

	// Resolution subsystem
	complaints.Handle("/{id}/proof", requireAuth(http.HandlerFunc(resolutionHandler.UploadProof))).Methods("POST")
	complaints.Handle("/{id}/proofs", requireAuth(http.HandlerFunc(resolutionHandler.ListProofs))).Methods("GET")
	complaints.Handle("/{id}/signoff", requireAuth(http.HandlerFunc(resolutionHandler.Signoff))).Methods("POST")
	complaints.Handle("/{id}/signoff", requireAuth(http.HandlerFunc(resolutionHandler.GetSignoff))).Methods("GET")
	complaints.Handle("/{id}/disputes/{signoff_id}/review", deptHeadOnly(http.HandlerFunc(resolutionHandler.ReviewDispute))).Methods("POST")

	// Routing and assignment
	complaints.Handle("/{id}/route", adminOnly(http.HandlerFunc(adminHandler.Route))).Methods("POST")
	complaints.Handle("/{id}/reassign", deptHeadUp(http.HandlerFunc(adminHandler.Reassign))).Methods("POST")

	// Admin surfaces
	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.Handle("/routing-queue", adminOnly(http.HandlerFunc(adminHandler.RoutingQueue))).Methods("GET")
	admin.Handle("/routing-queue/count", adminOnly(http.HandlerFunc(adminHandler.RoutingBacklog))).Methods("GET")
	admin.Handle("/audit", adminOnly(http.HandlerFunc(adminHandler.AuditByAction))).Methods("GET")
	admin.Handle("/audit/actors/{id}", adminOnly(http.HandlerFunc(adminHandler.AuditByActor))).Methods("GET")
	admin.Handle("/staff", adminOnly(http.HandlerFunc(adminHandler.CreateStaff))).Methods("POST")

	return router
}
