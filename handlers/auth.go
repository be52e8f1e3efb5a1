package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/openshelf/library-backend/middleware"
	"github.com/openshelf/library-backend/models"
	"github.com/openshelf/library-backend/session"
	"github.com/openshelf/library-backend/store"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

type AuthHandler struct {
	DB       *store.DB
	Sessions *session.Store
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if len(req.Password) < minPasswordLen {
		messageJSON(w, http.StatusBadRequest, "Use a password of at least 8 characters")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	userName := strings.ToLower(strings.TrimSpace(req.UserName))
	existing, err := h.DB.UserByEmail(r.Context(), email)
	if err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	if existing != nil {
		messageJSON(w, http.StatusBadRequest, "An user with this email already exists!")
		return
	}
	existing, err = h.DB.UserByUserName(r.Context(), userName)
	if err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	if existing != nil {
		messageJSON(w, http.StatusBadRequest, "Sorry!!! that userName is taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = models.RoleStudent
	}
	user := &models.User{
		Name:        req.Name,
		Email:       email,
		UserName:    userName,
		Password:    string(hash),
		Role:        role,
		IssuedBooks: []models.Loan{},
	}
	user.Normalize()
	if err := user.Validate(); err != nil {
		messageJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.DB.CreateUser(r.Context(), user); err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	messageJSON(w, http.StatusCreated, "User registered successfully")
}

type loginRequest struct {
	LoginID  string `json:"loginID"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Login accepts email or userName as loginID and the role the user is
// logging in as. On success an opaque session token is stored server-side
// and handed out in the "id" cookie, and the client is sent back to /.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	user, err := h.DB.UserByLoginID(r.Context(), strings.ToLower(strings.TrimSpace(req.LoginID)))
	if err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	if user == nil {
		messageJSON(w, http.StatusBadRequest, "User not found")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil || req.Role != user.Role {
		messageJSON(w, http.StatusBadRequest, "Invalid password or user type")
		return
	}

	// Already holding a live session for this role; nothing to create.
	if cookie, cErr := r.Cookie(middleware.SessionCookie); cErr == nil {
		if su, ok := h.Sessions.Get(cookie.Value); ok && su.Role == user.Role {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}

	token := uuid.NewString()
	h.Sessions.Set(token, session.User{Email: user.Email, Role: user.Role})
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookie, Value: token, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: middleware.NameCookie, Value: user.Name, Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		h.Sessions.Remove(cookie.Value)
	}
	middleware.ClearAuthCookies(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		messageJSON(w, http.StatusBadRequest, "Use a password of at least 8 characters")
		return
	}
	user, err := h.DB.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	if user == nil {
		messageJSON(w, http.StatusBadRequest, "User not found")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	if _, err := h.DB.UpdateUserFields(r.Context(), user.ID, bson.M{"password": string(hash)}); err != nil {
		messageJSON(w, http.StatusInternalServerError, "Server error")
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}
