package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"porter/internal/access"
	"porter/internal/domain"
	"porter/internal/service"
)

// AuthHandler serves the login and registration views.
type AuthHandler struct {
	sessions *service.SessionManager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions *service.SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// LoginRequest is the login form.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
	Password string `json:"password" form:"password"`
	Role     string `json:"role" form:"role"`
}

// AuthResponse is returned after a successful login or registration.
type AuthResponse struct {
	User     UserResponse `json:"user"`
	Redirect string       `json:"redirect"`
}

// FormResponse describes a public form view.
type FormResponse struct {
	View          string   `json:"view"`
	Authenticated bool     `json:"authenticated"`
	Roles         []string `json:"roles,omitempty"`
}

// LoginView handles GET /login
func (h *AuthHandler) LoginView(c *gin.Context) {
	respondJSON(c, http.StatusOK, FormResponse{
		View:          "login",
		Authenticated: h.sessions.Snapshot().Authenticated(),
	})
}

// RegisterView handles GET /register
func (h *AuthHandler) RegisterView(c *gin.Context) {
	respondJSON(c, http.StatusOK, FormResponse{
		View:          "register",
		Authenticated: h.sessions.Snapshot().Authenticated(),
		Roles:         []string{string(domain.RoleCustomer), string(domain.RolePorter)},
	})
}

// Login handles POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.sessions.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		respondError(c, err)
		return
	}

	h.respondSignedIn(c, http.StatusOK)
}

// Register handles POST /register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.sessions.Register(c.Request.Context(), domain.Profile{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondSignedIn(c, http.StatusCreated)
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.sessions.Logout(c.Request.Context())
	respondJSON(c, http.StatusOK, gin.H{"redirect": access.PathLogin})
}

func (h *AuthHandler) respondSignedIn(c *gin.Context, code int) {
	session := h.sessions.Snapshot()
	if session.User == nil {
		// Signed out again before we could answer.
		respondError(c, service.ErrNotAuthenticated)
		return
	}
	respondJSON(c, code, AuthResponse{
		User:     toUserResponse(*session.User),
		Redirect: access.PathMain,
	})
}
