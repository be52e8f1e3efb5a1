package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openshelf/library-backend/models"
	"github.com/openshelf/library-backend/service"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// A user may hold at most this many unreturned loans.
	maxOpenLoans = 5
	// Issue substitutes issued_date + this many days when the requested due
	// date does not parse.
	fallbackLoanDays = 14
)

// BookStore is the slice of the book collection the loan workflow uses.
type BookStore interface {
	BookIDByISBN(ctx context.Context, isbn string) (primitive.ObjectID, error)
	BookByID(ctx context.Context, id primitive.ObjectID) (*models.Book, error)
	AdjustBookQuantity(ctx context.Context, id primitive.ObjectID, delta int) (*models.Book, error)
}

// UserStore is the slice of the user collection the loan workflow uses.
type UserStore interface {
	UserIDByUserName(ctx context.Context, userName string) (primitive.ObjectID, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	PushLoan(ctx context.Context, id primitive.ObjectID, loan models.Loan) (*models.User, error)
	PullLoan(ctx context.Context, id, bookID primitive.ObjectID) (*models.User, error)
	ReplaceUser(ctx context.Context, user *models.User) error
}

// LoansHandler implements issue/return/renew. The two effects of Issue and
// Return (quantity adjust + issued_books write) are separate single-document
// updates with no transaction across them; when the second write fails a
// best-effort compensating re-adjust is attempted before reporting 500.
type LoansHandler struct {
	Books    BookStore
	Users    UserStore
	Notifier *service.Notifier // optional; nil disables loan receipts
}

type issueRequest struct {
	ISBN          string `json:"isbn"`
	DueDateString string `json:"dueDateString"`
}

type issueResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

// dateLayouts are the calendar-date shapes accepted from clients, most
// specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolveLoanParties maps the route's userName and the body's isbn to record
// IDs via each collection's secondary index. Zero IDs mean no match.
func (h *LoansHandler) resolveLoanParties(ctx context.Context, userName, isbn string) (userID, bookID primitive.ObjectID, err error) {
	bookID, err = h.Books.BookIDByISBN(ctx, isbn)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, err
	}
	userID, err = h.Users.UserIDByUserName(ctx, userName)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, err
	}
	return userID, bookID, nil
}

func (h *LoansHandler) Issue(w http.ResponseWriter, r *http.Request) {
	userName := chi.URLParam(r, "userName")
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	userID, bookID, err := h.resolveLoanParties(r.Context(), userName, req.ISBN)
	if err != nil {
		internalError(w, err)
		return
	}
	if userID.IsZero() || bookID.IsZero() {
		messageJSON(w, http.StatusBadRequest, "Invalid user or ISBN.")
		return
	}

	book, err := h.Books.BookByID(r.Context(), bookID)
	if err != nil {
		internalError(w, err)
		return
	}
	user, err := h.Users.UserByID(r.Context(), userID)
	if err != nil {
		internalError(w, err)
		return
	}
	if book == nil || user == nil {
		messageJSON(w, http.StatusNotFound, "Either Book or user not found.")
		return
	}

	if book.Quantity <= 0 {
		messageJSON(w, http.StatusConflict, "This title is out of the shelves for now.")
		return
	}
	if user.HasOpenLoan(book.ISBN) {
		messageJSON(w, http.StatusConflict, "User has already issued this book and not returned it yet.")
		return
	}
	if user.OpenLoanCount() >= maxOpenLoans {
		messageJSON(w, http.StatusConflict, "User has already issued maximum number of books (5).")
		return
	}

	issuedDate := time.Now()
	dueDate, parsed := parseDate(req.DueDateString)
	if !parsed {
		dueDate = issuedDate.AddDate(0, 0, fallbackLoanDays)
	}

	if _, err := h.Books.AdjustBookQuantity(r.Context(), bookID, -1); err != nil {
		internalError(w, err)
		return
	}
	loan := models.Loan{
		BookID:       bookID,
		Author:       book.Author,
		Title:        book.Title,
		ISBN:         book.ISBN,
		IssuedDate:   issuedDate,
		DueDate:      dueDate,
		ReturnedDate: nil,
	}
	updated, err := h.Users.PushLoan(r.Context(), userID, loan)
	if err != nil {
		// The copy was already taken off the shelf; put it back so the
		// count does not drift.
		if _, adjErr := h.Books.AdjustBookQuantity(r.Context(), bookID, 1); adjErr != nil {
			log.Printf("issue %s: compensating quantity adjust failed: %v", book.ISBN, adjErr)
		}
		internalError(w, err)
		return
	}

	if h.Notifier != nil && updated != nil {
		go h.Notifier.SendLoanReceipt(updated, loan)
	}

	msg := "Book issued successfully."
	if !parsed {
		msg = "Book issued successfully with a default 14-day due date due to invalid date format."
	}
	writeJSON(w, http.StatusOK, issueResponse{Message: msg, User: updated})
}

type returnRequest struct {
	ISBN             string `json:"isbn"`
	ReturnDateString string `json:"returnDateString"`
}

func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	userName := chi.URLParam(r, "userName")
	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	// Unlike Issue there is no fallback: a return date that does not parse
	// rejects the request.
	if _, ok := parseDate(req.ReturnDateString); !ok {
		messageJSON(w, http.StatusBadRequest, "Invalid return date format.")
		return
	}

	userID, bookID, err := h.resolveLoanParties(r.Context(), userName, req.ISBN)
	if err != nil {
		internalError(w, err)
		return
	}
	if userID.IsZero() || bookID.IsZero() {
		messageJSON(w, http.StatusBadRequest, "Invalid user or book ID.")
		return
	}

	user, err := h.Users.UserByID(r.Context(), userID)
	if err != nil {
		internalError(w, err)
		return
	}
	book, err := h.Books.BookByID(r.Context(), bookID)
	if err != nil {
		internalError(w, err)
		return
	}
	if book == nil || user == nil {
		messageJSON(w, http.StatusNotFound, "Either Book or user not found.")
		return
	}

	idx := user.LoanIndexByISBN(req.ISBN)
	if idx == -1 {
		messageJSON(w, http.StatusNotFound, "This book was not issued to this user.")
		return
	}

	if _, err := h.Books.AdjustBookQuantity(r.Context(), bookID, 1); err != nil {
		internalError(w, err)
		return
	}
	if _, err := h.Users.PullLoan(r.Context(), userID, user.IssuedBooks[idx].BookID); err != nil {
		if _, adjErr := h.Books.AdjustBookQuantity(r.Context(), bookID, -1); adjErr != nil {
			log.Printf("return %s: compensating quantity adjust failed: %v", book.ISBN, adjErr)
		}
		internalError(w, err)
		return
	}

	messageJSON(w, http.StatusOK, "Book returned successfully.")
}

type renewRequest struct {
	ISBN             string `json:"isbn"`
	NewDueDateString string `json:"newDueDateString"`
}

type renewResponse struct {
	Message     string        `json:"message"`
	IssuedBooks []models.Loan `json:"issued_books"`
}

func (h *LoansHandler) Renew(w http.ResponseWriter, r *http.Request) {
	userName := chi.URLParam(r, "userName")
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	newDueDate, ok := parseDate(req.NewDueDateString)
	if !ok {
		messageJSON(w, http.StatusBadRequest, "Invalid new due date format.")
		return
	}

	userID, bookID, err := h.resolveLoanParties(r.Context(), userName, req.ISBN)
	if err != nil {
		internalError(w, err)
		return
	}
	if userID.IsZero() || bookID.IsZero() {
		messageJSON(w, http.StatusBadRequest, "Invalid user or book ID.")
		return
	}

	user, err := h.Users.UserByID(r.Context(), userID)
	if err != nil {
		internalError(w, err)
		return
	}
	book, err := h.Books.BookByID(r.Context(), bookID)
	if err != nil {
		internalError(w, err)
		return
	}
	if book == nil || user == nil {
		messageJSON(w, http.StatusNotFound, "Either Book or user not found.")
		return
	}

	idx := user.LoanIndexByISBN(book.ISBN)
	if idx == -1 {
		messageJSON(w, http.StatusNotFound, "This book was not issued to this user.")
		return
	}

	user.IssuedBooks[idx].DueDate = newDueDate
	if err := h.Users.ReplaceUser(r.Context(), user); err != nil {
		internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, renewResponse{
		Message:     "Book renewed successfully.",
		IssuedBooks: user.IssuedBooks,
	})
}
