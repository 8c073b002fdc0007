package api

import (
	"net/http"

	"github.com/gather-app/gather/internal/config"
	"github.com/gather-app/gather/internal/db"
	"github.com/gather-app/gather/internal/ratelimit"
	"github.com/gather-app/gather/internal/repository/sqlite"
	"github.com/gather-app/gather/internal/survey"
	"github.com/gorilla/mux"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, conn *db.DB, queue Enqueuer) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(SecurityHeadersMiddleware)
	r.Use(CORSMiddlewareWithOrigins(cfg.AllowedOrigins))
	r.Use(MaxBytesMiddleware(cfg.MaxRequestBytes))

	// Repository and services
	repo := sqlite.New(conn, nil)
	svc := survey.NewService(repo, repo, cfg.BcryptCost)

	// Create handlers
	systemHandler := &SystemHandler{}
	loginLimiter := ratelimit.New(cfg.LoginRateLimit.Max, cfg.LoginRateLimit.Window)
	authHandler := NewAuthHandler(repo, cfg.JWTSecret, cfg.TokenDuration, cfg.AdminRegistrationToken, cfg.BcryptCost, loginLimiter)
	eventsHandler := NewEventsHandler(repo, repo, repo, svc, queue, cfg.PublicBaseURL)
	surveysHandler := NewSurveysHandler(repo, repo, repo, svc)
	adminEventsHandler := NewAdminEventsHandler(repo, repo, repo, cfg.BcryptCost)
	adminSurveysHandler := NewAdminSurveysHandler(repo, repo, repo, repo)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/healthz", systemHandler.HealthHandler).Methods("GET")

	// Guest endpoints, throttled per client IP
	guest := r.PathPrefix("/api").Subrouter()
	guest.Use(RateLimitMiddleware(ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window)))
	guest.HandleFunc("/events/{token}", eventsHandler.Get).Methods("GET")
	guest.HandleFunc("/events/{token}/stats", eventsHandler.Stats).Methods("GET")
	guest.HandleFunc("/events/{token}/rsvp", eventsHandler.CreateRSVP).Methods("POST")
	guest.HandleFunc("/events/{token}/rsvp", eventsHandler.UpdateRSVP).Methods("PUT")
	guest.HandleFunc("/events/{token}/my-rsvp", eventsHandler.MyRSVP).Methods("GET")
	guest.HandleFunc("/surveys/{token}", surveysHandler.Get).Methods("GET")
	guest.HandleFunc("/surveys/{token}/responses", surveysHandler.SubmitResponses).Methods("POST")

	// Admin auth endpoints; login throttles inside the handler
	r.HandleFunc("/api/admin/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/admin/register", authHandler.Register).Methods("POST")

	// Admin protected routes
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	admin.HandleFunc("/me", authHandler.Me).Methods("GET")
	admin.HandleFunc("/csrf-token", authHandler.CSRFToken).Methods("GET")
	admin.HandleFunc("/admins", authHandler.ListAdmins).Methods("GET")
	admin.HandleFunc("/admins", authHandler.CreateAdmin).Methods("POST")

	admin.HandleFunc("/events", adminEventsHandler.List).Methods("GET")
	admin.HandleFunc("/events", adminEventsHandler.Create).Methods("POST")
	admin.HandleFunc("/events/{id}", adminEventsHandler.Get).Methods("GET")
	admin.HandleFunc("/events/{id}", adminEventsHandler.Update).Methods("PUT")
	admin.HandleFunc("/events/{id}", adminEventsHandler.Delete).Methods("DELETE")
	admin.HandleFunc("/events/{id}/rsvps", adminEventsHandler.ListRSVPs).Methods("GET")
	admin.HandleFunc("/events/{id}/rsvps/{rsvpID}", adminEventsHandler.DeleteRSVP).Methods("DELETE")

	admin.HandleFunc("/surveys", adminSurveysHandler.List).Methods("GET")
	admin.HandleFunc("/surveys", adminSurveysHandler.Create).Methods("POST")
	admin.HandleFunc("/surveys/{id}", adminSurveysHandler.Get).Methods("GET")
	admin.HandleFunc("/surveys/{id}", adminSurveysHandler.Update).Methods("PUT")
	admin.HandleFunc("/surveys/{id}", adminSurveysHandler.Delete).Methods("DELETE")
	admin.HandleFunc("/surveys/{id}/questions", adminSurveysHandler.ListQuestions).Methods("GET")
	admin.HandleFunc("/surveys/{id}/questions", adminSurveysHandler.CreateQuestion).Methods("POST")
	admin.HandleFunc("/surveys/{id}/questions/{qid}", adminSurveysHandler.UpdateQuestion).Methods("PUT")
	admin.HandleFunc("/surveys/{id}/questions/{qid}", adminSurveysHandler.DeleteQuestion).Methods("DELETE")
	admin.HandleFunc("/surveys/{id}/submissions", adminSurveysHandler.ListSubmissions).Methods("GET")
	admin.HandleFunc("/surveys/{id}/responses", adminSurveysHandler.ListAnswers).Methods("GET")
	admin.HandleFunc("/surveys/{id}/responses/by-question", adminSurveysHandler.AnswersByQuestion).Methods("GET")

	// Preflight requests are answered by the CORS middleware; the route only
	// exists so the middleware chain runs for OPTIONS.
	r.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return r
}
