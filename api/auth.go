package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"log/slog"

	"github.com/gather-app/gather/internal/ratelimit"
	"github.com/gather-app/gather/internal/tokens"
	"github.com/gather-app/gather/pkg/models"
	"github.com/gather-app/gather/pkg/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	admins            repository.AdminRepo
	jwtSecret         string
	tokenDuration     time.Duration
	registrationToken string
	bcryptCost        int
	loginLimiter      *ratelimit.Limiter
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
// registrationToken empty disables self-registration once an admin exists.
func NewAuthHandler(admins repository.AdminRepo, jwtSecret string, tokenDuration time.Duration, registrationToken string, bcryptCost int, loginLimiter *ratelimit.Limiter) *AuthHandler {
	return &AuthHandler{
		admins:            admins,
		jwtSecret:         jwtSecret,
		tokenDuration:     tokenDuration,
		registrationToken: registrationToken,
		bcryptCost:        bcryptCost,
		loginLimiter:      loginLimiter,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	RegistrationToken string `json:"registration_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type adminResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

type rateLimitedResponse struct {
	Error             string `json:"error"`
	RetryAfter        int    `json:"retry_after"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

func adminToResponse(a *models.Admin) adminResponse {
	return adminResponse{ID: a.ID, Email: a.Email, IsActive: a.IsActive, CreatedAt: isoTime(a.CreatedAt)}
}

func (h *AuthHandler) rateLimitHeaders(w http.ResponseWriter, ip string) int {
	reset := h.loginLimiter.ResetAt(ip)
	retry := int(time.Until(reset).Seconds()) + 1
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(h.loginLimiter.Remaining(ip)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	return retry
}

// Login checks credentials and issues a bearer token whose sub claim is the
// admin id. Attempts are rate limited per client IP before the password is
// ever checked.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.loginLimiter.Allow(ip) {
		retry := h.rateLimitHeaders(w, ip)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, rateLimitedResponse{
			Error:             "Too many login attempts. Please try again later.",
			RetryAfter:        retry,
			RemainingAttempts: h.loginLimiter.Remaining(ip),
		}, http.StatusTooManyRequests)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, "Missing fields", http.StatusBadRequest)
		return
	}

	admin, err := h.admins.GetAdminByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if admin == nil || bcrypt.CompareHashAndPassword([]byte(admin.HashedPassword), []byte(req.Password)) != nil {
		// failed attempts stay counted against the window
		h.rateLimitHeaders(w, ip)
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, "Incorrect email or password", http.StatusUnauthorized)
		return
	}

	if !admin.IsActive {
		writeError(w, "Inactive admin account", http.StatusForbidden)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": admin.ID,
		"exp": time.Now().Add(h.tokenDuration).Unix(),
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		writeError(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, tokenResponse{AccessToken: tokenStr, TokenType: "bearer"}, http.StatusOK)
}

// Register creates an admin account. Open for the very first admin; after
// that it requires the configured registration token, and with no token
// configured it is closed entirely.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateCredentials(req.Email, req.Password); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	existing, err := h.admins.GetAdminByEmail(ctx, req.Email)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		writeError(w, "Email already registered", http.StatusBadRequest)
		return
	}

	count, err := h.admins.CountAdmins(ctx)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if count > 0 {
		if h.registrationToken == "" {
			writeError(w, "Registration is disabled. Use the authenticated /api/admin/admins endpoint to create additional admins.", http.StatusForbidden)
			return
		}
		if req.RegistrationToken == "" || req.RegistrationToken != h.registrationToken {
			writeError(w, "Invalid or missing registration token", http.StatusForbidden)
			return
		}
	}

	resp, ok := h.createAdmin(ctx, w, req.Email, req.Password)
	if !ok {
		return
	}
	writeJSON(w, resp, http.StatusCreated)
}

// Me returns the authenticated admin's account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value(CtxAdminID).(int64)
	if adminID <= 0 {
		writeError(w, "Could not validate credentials", http.StatusUnauthorized)
		return
	}

	admin, err := h.admins.GetAdminByID(r.Context(), adminID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if admin == nil {
		writeError(w, "Could not validate credentials", http.StatusUnauthorized)
		return
	}

	writeJSON(w, adminToResponse(admin), http.StatusOK)
}

// CSRFToken mints a random token for admin form posts.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	tok, err := tokens.New()
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"csrf_token": tok}, http.StatusOK)
}

// ListAdmins returns every admin account.
func (h *AuthHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.admins.ListAdmins(r.Context())
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]adminResponse, 0, len(admins))
	for i := range admins {
		out = append(out, adminToResponse(&admins[i]))
	}
	writeJSON(w, out, http.StatusOK)
}

// CreateAdmin adds another admin account. Requires authentication; the open
// registration rules do not apply here.
func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateCredentials(req.Email, req.Password); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	existing, err := h.admins.GetAdminByEmail(ctx, req.Email)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		writeError(w, "Email already registered", http.StatusBadRequest)
		return
	}

	resp, ok := h.createAdmin(ctx, w, req.Email, req.Password)
	if !ok {
		return
	}
	writeJSON(w, resp, http.StatusCreated)
}

func (h *AuthHandler) createAdmin(ctx context.Context, w http.ResponseWriter, email, password string) (adminResponse, bool) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		writeError(w, "Error hashing password", http.StatusInternalServerError)
		return adminResponse{}, false
	}

	admin := models.Admin{
		Email:          email,
		HashedPassword: string(hash),
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	id, err := h.admins.CreateAdmin(ctx, &admin)
	if err != nil {
		logger.Error("create admin", slog.Any("err", err))
		writeError(w, "Error creating admin", http.StatusInternalServerError)
		return adminResponse{}, false
	}
	admin.ID = id

	return adminToResponse(&admin), true
}

func validateCredentials(email, password string) string {
	if email == "" || password == "" {
		return "Missing fields"
	}
	if _, err := mail.ParseAddress(email); err != nil || len(email) > 254 {
		return "Invalid email address"
	}
	if len(password) < 8 || len(password) > 72 {
		return "Password must be between 8 and 72 characters"
	}
	return ""
}
