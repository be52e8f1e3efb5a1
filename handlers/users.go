package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/openshelf/library-backend/middleware"
	"github.com/openshelf/library-backend/models"
	"github.com/openshelf/library-backend/session"
	"github.com/openshelf/library-backend/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type UsersHandler struct {
	DB       *store.DB
	Sessions *session.Store
}

type addUserRequest struct {
	Name     string `json:"name"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Add creates a user (admin surface; registration has its own route).
func (h *UsersHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = models.RoleStudent
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, err)
		return
	}
	user := &models.User{
		Name:        req.Name,
		UserName:    req.UserName,
		Email:       req.Email,
		Password:    string(hash),
		Role:        role,
		IssuedBooks: []models.Loan{},
	}
	user.Normalize()
	if err := user.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Validation error",
			"errors":  []string{err.Error()},
		})
		return
	}
	taken, err := h.DB.EmailOrUserNameTaken(r.Context(), user.Email, user.UserName, primitive.NilObjectID)
	if err != nil {
		internalError(w, err)
		return
	}
	if taken {
		messageJSON(w, http.StatusConflict, "An user with this email or user name already exists.")
		return
	}
	if _, err := h.DB.CreateUser(r.Context(), user); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User added successfully.",
		"user":    user,
	})
}

// List returns all users; passwords are dropped by the json:"-" tag.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.DB.ListUsers(r.Context())
	if err != nil {
		messageJSON(w, http.StatusInternalServerError, "Error fetching users from the database.")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type modUserRequest struct {
	Email    string  `json:"email"`
	Name     *string `json:"name"`
	UserName *string `json:"userName"`
	Role     *string `json:"role"`
}

// Mod updates a user located by the email in the request body.
func (h *UsersHandler) Mod(w http.ResponseWriter, r *http.Request) {
	var req modUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	user, err := h.DB.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		internalError(w, err)
		return
	}
	if user == nil {
		messageJSON(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	patch := bson.M{}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.UserName != nil {
		userName := strings.ToLower(strings.TrimSpace(*req.UserName))
		taken, err := h.DB.EmailOrUserNameTaken(r.Context(), user.Email, userName, user.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		if taken {
			messageJSON(w, http.StatusConflict, "An user with this email or user name already exists.")
			return
		}
		patch["userName"] = userName
	}
	if req.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*req.Role))
		if !models.RoleValid(role) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"message": "Failed to update user",
				"error":   "role must be student or admin",
			})
			return
		}
		patch["role"] = role
	}
	if len(patch) == 0 {
		writeJSON(w, http.StatusOK, user)
		return
	}
	updated, err := h.DB.UpdateUserFields(r.Context(), user.ID, patch)
	if err != nil {
		internalError(w, err)
		return
	}
	if updated == nil {
		messageJSON(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Remove deletes a user by userName. Refused while the user holds
// unreturned books; the user's live session (if any) is dropped.
func (h *UsersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userName := chi.URLParam(r, "userName")
	id, err := h.DB.UserIDByUserName(r.Context(), userName)
	if err != nil {
		internalError(w, err)
		return
	}
	if id.IsZero() {
		messageJSON(w, http.StatusBadRequest, "Invalid user ID.")
		return
	}
	user, err := h.DB.UserByID(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	if user == nil {
		messageJSON(w, http.StatusNotFound, "User not found.")
		return
	}
	if user.OpenLoanCount() > 0 {
		messageJSON(w, http.StatusConflict, "User cannot be removed while they have unreturned books.")
		return
	}
	deleted, err := h.DB.DeleteUserByID(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	if cookie, cErr := r.Cookie(middleware.SessionCookie); cErr == nil {
		if su, ok := h.Sessions.Get(cookie.Value); ok && su.Email == user.Email {
			h.Sessions.Remove(cookie.Value)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User successfully removed.",
		"user":    deleted,
	})
}

func (h *UsersHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		messageJSON(w, http.StatusBadRequest, "Search query 'q' is required.")
		return
	}
	page, limit := parsePage(r.URL.Query())
	users, total, err := h.DB.SearchUsers(r.Context(), q, page, limit)
	if err != nil {
		internalError(w, err)
		return
	}
	if total == 0 {
		messageJSON(w, http.StatusNotFound, "No users found matching your search.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    strconv.Itoa(len(users)) + " user(s) found.",
		"page":       page,
		"limit":      limit,
		"totalUsers": total,
		"users":      users,
	})
}
