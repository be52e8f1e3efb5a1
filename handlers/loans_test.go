package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/openshelf/library-backend/handlers"
	"github.com/openshelf/library-backend/models"
)

type fakeBookStore struct {
	mu        sync.Mutex
	books     map[primitive.ObjectID]*models.Book
	adjustErr error
}

func newFakeBookStore(books ...*models.Book) *fakeBookStore {
	f := &fakeBookStore{books: make(map[primitive.ObjectID]*models.Book)}
	for _, b := range books {
		if b.ID.IsZero() {
			b.ID = primitive.NewObjectID()
		}
		f.books[b.ID] = b
	}
	return f
}

func (f *fakeBookStore) BookIDByISBN(_ context.Context, isbn string) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range f.books {
		if b.ISBN == isbn {
			return id, nil
		}
	}
	return primitive.NilObjectID, nil
}

func (f *fakeBookStore) BookByID(_ context.Context, id primitive.ObjectID) (*models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookStore) AdjustBookQuantity(_ context.Context, id primitive.ObjectID, delta int) (*models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adjustErr != nil {
		return nil, f.adjustErr
	}
	b, ok := f.books[id]
	if !ok {
		return nil, nil
	}
	b.Quantity += delta
	cp := *b
	return &cp, nil
}

func (f *fakeBookStore) quantity(t *testing.T, isbn string) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.books {
		if b.ISBN == isbn {
			return b.Quantity
		}
	}
	t.Fatalf("no book with isbn %s", isbn)
	return 0
}

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[primitive.ObjectID]*models.User
	pushErr error
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[primitive.ObjectID]*models.User)}
	for _, u := range users {
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		f.users[u.ID] = u
	}
	return f
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.IssuedBooks = append([]models.Loan(nil), u.IssuedBooks...)
	return &cp
}

func (f *fakeUserStore) UserIDByUserName(_ context.Context, userName string) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.UserName == userName {
			return id, nil
		}
	}
	return primitive.NilObjectID, nil
}

func (f *fakeUserStore) UserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (f *fakeUserStore) PushLoan(_ context.Context, id primitive.ObjectID, loan models.Loan) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	u.IssuedBooks = append(u.IssuedBooks, loan)
	return copyUser(u), nil
}

func (f *fakeUserStore) PullLoan(_ context.Context, id, bookID primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	kept := u.IssuedBooks[:0]
	for _, l := range u.IssuedBooks {
		if l.BookID != bookID {
			kept = append(kept, l)
		}
	}
	u.IssuedBooks = kept
	return copyUser(u), nil
}

func (f *fakeUserStore) ReplaceUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = copyUser(user)
	return nil
}

func (f *fakeUserStore) byUserName(t *testing.T, userName string) *models.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.UserName == userName {
			return copyUser(u)
		}
	}
	t.Fatalf("no user with userName %s", userName)
	return nil
}

func newLoanServer(books *fakeBookStore, users *fakeUserStore) http.Handler {
	h := &handlers.LoansHandler{Books: books, Users: users}
	r := chi.NewRouter()
	r.Post("/api/issue/{userName}", h.Issue)
	r.Post("/api/return/{userName}", h.Return)
	r.Post("/api/renew/{userName}", h.Renew)
	return r
}

func doPost(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Message
}

const testISBN = "9781234567890"

func testBook(isbn string, quantity int) *models.Book {
	return &models.Book{
		Title:    "The Go Programming Language",
		Author:   "Donovan & Kernighan",
		ISBN:     isbn,
		Quantity: quantity,
	}
}

func testUser(userName string, loans ...models.Loan) *models.User {
	return &models.User{
		Name:        "Jane Reader",
		Email:       userName + "@example.com",
		UserName:    userName,
		Role:        models.RoleStudent,
		IssuedBooks: loans,
	}
}

func openLoan(isbn string) models.Loan {
	return models.Loan{
		BookID:     primitive.NewObjectID(),
		Author:     "someone",
		Title:      "something",
		ISBN:       isbn,
		IssuedDate: time.Now().AddDate(0, 0, -7),
		DueDate:    time.Now().AddDate(0, 0, 7),
	}
}

func TestIssueDecrementsQuantityAndAppendsLoan(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 3))
	users := newFakeUserStore(testUser("jane"))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/jane", map[string]string{
		"isbn":          testISBN,
		"dueDateString": "2026-10-01",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, books.quantity(t, testISBN))

	user := users.byUserName(t, "jane")
	require.Len(t, user.IssuedBooks, 1)
	loan := user.IssuedBooks[0]
	assert.Equal(t, testISBN, loan.ISBN)
	assert.Equal(t, "The Go Programming Language", loan.Title)
	assert.Equal(t, "Donovan & Kernighan", loan.Author)
	assert.False(t, loan.Returned)
	assert.Nil(t, loan.ReturnedDate)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), loan.DueDate)

	var resp struct {
		Message string      `json:"message"`
		User    models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Book issued successfully.", resp.Message)
	assert.Len(t, resp.User.IssuedBooks, 1)
	assert.Empty(t, resp.User.Password)
}

func TestIssueUnknownUserOrISBN(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 1))
	users := newFakeUserStore(testUser("jane"))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/nobody", map[string]string{"isbn": testISBN, "dueDateString": "2026-10-01"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid user or ISBN.", decodeMessage(t, w))

	w = doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": "9780000000000", "dueDateString": "2026-10-01"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid user or ISBN.", decodeMessage(t, w))
}

func TestIssueOutOfStock(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 0))
	users := newFakeUserStore(testUser("jane"))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": testISBN, "dueDateString": "2026-10-01"})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "This title is out of the shelves for now.", decodeMessage(t, w))
	assert.Equal(t, 0, books.quantity(t, testISBN))
	assert.Empty(t, users.byUserName(t, "jane").IssuedBooks)
}

func TestIssueDuplicateOpenLoan(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 4))
	users := newFakeUserStore(testUser("jane", openLoan(testISBN)))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": testISBN, "dueDateString": "2026-10-01"})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "User has already issued this book and not returned it yet.", decodeMessage(t, w))
	assert.Equal(t, 4, books.quantity(t, testISBN))
}

func TestIssueAtLoanCap(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 4))
	user := testUser("jane",
		openLoan("9781111111111"),
		openLoan("9782222222222"),
		openLoan("9783333333333"),
		openLoan("9784444444444"),
		openLoan("9785555555555"),
	)
	users := newFakeUserStore(user)
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": testISBN, "dueDateString": "2026-10-01"})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "User has already issued maximum number of books (5).", decodeMessage(t, w))
	assert.Equal(t, 4, books.quantity(t, testISBN))
	assert.Len(t, users.byUserName(t, "jane").IssuedBooks, 5)
}

func TestIssueCapCountsOnlyOpenLoans(t *testing.T) {
	returned := openLoan("9781111111111")
	returned.Returned = true
	books := newFakeBookStore(testBook(testISBN, 1))
	user := testUser("jane",
		returned,
		openLoan("9782222222222"),
		openLoan("9783333333333"),
		openLoan("9784444444444"),
		openLoan("9785555555555"),
	)
	users := newFakeUserStore(user)
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": testISBN, "dueDateString": "2026-10-01"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, books.quantity(t, testISBN))
	assert.Len(t, users.byUserName(t, "jane").IssuedBooks, 6)
}

func TestIssueFallbackDueDate(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 2))
	users := newFakeUserStore(testUser("jane"))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": testISBN, "dueDateString": "not-a-date"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Book issued successfully with a default 14-day due date due to invalid date format.", resp.Message)

	user := users.byUserName(t, "jane")
	require.Len(t, user.IssuedBooks, 1)
	loan := user.IssuedBooks[0]
	assert.WithinDuration(t, loan.IssuedDate.AddDate(0, 0, 14), loan.DueDate, time.Second)
	assert.Equal(t, 1, books.quantity(t, testISBN))
}

func TestIssueCompensatesWhenLoanWriteFails(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 3))
	users := newFakeUserStore(testUser("jane"))
	users.pushErr = errors.New("write failed")
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": testISBN, "dueDateString": "2026-10-01"})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 3, books.quantity(t, testISBN))
	assert.Empty(t, users.byUserName(t, "jane").IssuedBooks)
}

func TestReturnInvalidDate(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 1))
	users := newFakeUserStore(testUser("jane", openLoan(testISBN)))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/return/jane", map[string]string{"isbn": testISBN, "returnDateString": "not-a-date"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid return date format.", decodeMessage(t, w))
	assert.Equal(t, 1, books.quantity(t, testISBN))
	assert.Len(t, users.byUserName(t, "jane").IssuedBooks, 1)
}

func TestReturnNotIssued(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 1))
	users := newFakeUserStore(testUser("jane"))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/return/jane", map[string]string{"isbn": testISBN, "returnDateString": "2026-10-01"})

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "This book was not issued to this user.", decodeMessage(t, w))
	assert.Equal(t, 1, books.quantity(t, testISBN))
}

func TestReturnRemovesLoanAndIncrementsQuantity(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 1))
	bookID, err := books.BookIDByISBN(context.Background(), testISBN)
	require.NoError(t, err)
	loan := openLoan(testISBN)
	loan.BookID = bookID
	other := openLoan("9789999999999")
	users := newFakeUserStore(testUser("jane", loan, other))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/return/jane", map[string]string{"isbn": testISBN, "returnDateString": "2026-10-01"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Book returned successfully.", decodeMessage(t, w))
	assert.Equal(t, 2, books.quantity(t, testISBN))

	user := users.byUserName(t, "jane")
	require.Len(t, user.IssuedBooks, 1)
	assert.Equal(t, other.ISBN, user.IssuedBooks[0].ISBN)
}

func TestReturnMatchesByISBNRegardlessOfReturnedFlag(t *testing.T) {
	// The lookup in Return matches on ISBN alone, so a loan already flagged
	// returned is still found and removed.
	books := newFakeBookStore(testBook(testISBN, 1))
	bookID, err := books.BookIDByISBN(context.Background(), testISBN)
	require.NoError(t, err)
	loan := openLoan(testISBN)
	loan.BookID = bookID
	loan.Returned = true
	users := newFakeUserStore(testUser("jane", loan))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/return/jane", map[string]string{"isbn": testISBN, "returnDateString": "2026-10-01"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, books.quantity(t, testISBN))
	assert.Empty(t, users.byUserName(t, "jane").IssuedBooks)
}

func TestRenewInvalidDate(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 1))
	users := newFakeUserStore(testUser("jane", openLoan(testISBN)))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/renew/jane", map[string]string{"isbn": testISBN, "newDueDateString": "someday"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid new due date format.", decodeMessage(t, w))
}

func TestRenewNotIssued(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 1))
	users := newFakeUserStore(testUser("jane"))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/renew/jane", map[string]string{"isbn": testISBN, "newDueDateString": "2026-11-15"})

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "This book was not issued to this user.", decodeMessage(t, w))
}

func TestRenewUpdatesOnlyMatchingLoan(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 1))
	target := openLoan(testISBN)
	other := openLoan("9789999999999")
	users := newFakeUserStore(testUser("jane", target, other))
	srv := newLoanServer(books, users)

	w := doPost(t, srv, "/api/renew/jane", map[string]string{"isbn": testISBN, "newDueDateString": "2026-11-15"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Message     string        `json:"message"`
		IssuedBooks []models.Loan `json:"issued_books"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Book renewed successfully.", resp.Message)
	require.Len(t, resp.IssuedBooks, 2)

	user := users.byUserName(t, "jane")
	newDue := time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, newDue, user.IssuedBooks[0].DueDate)
	assert.Equal(t, other.DueDate.Unix(), user.IssuedBooks[1].DueDate.Unix())
	assert.Equal(t, 1, books.quantity(t, testISBN))
}

func TestIssueThenReturnRoundTrip(t *testing.T) {
	books := newFakeBookStore(testBook(testISBN, 2))
	users := newFakeUserStore(testUser("jane", openLoan("9789999999999")))
	srv := newLoanServer(books, users)

	openBefore := users.byUserName(t, "jane").OpenLoanCount()

	w := doPost(t, srv, "/api/issue/jane", map[string]string{"isbn": testISBN, "dueDateString": "2026-10-01"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doPost(t, srv, "/api/return/jane", map[string]string{"isbn": testISBN, "returnDateString": "2026-09-20"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, books.quantity(t, testISBN))
	assert.Equal(t, openBefore, users.byUserName(t, "jane").OpenLoanCount())
}
