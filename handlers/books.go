package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/openshelf/library-backend/models"
	"github.com/openshelf/library-backend/service"
	"github.com/openshelf/library-backend/store"
	"go.mongodb.org/mongo-driver/bson"
)

type BooksHandler struct {
	DB *store.DB
	S3 *service.S3Service // optional; nil disables cover endpoints
}

// List returns every book in the catalog.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.DB.AllBooks(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Error retrieving books",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, books)
}

type addBookRequest struct {
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	ISBN            string   `json:"isbn"`
	Genres          []string `json:"genres"`
	CoverURL        string   `json:"cover_url"`
	PublicationYear int      `json:"publication_year"`
	Publisher       string   `json:"publisher"`
	Pages           int      `json:"pages"`
	Quantity        int      `json:"quantity"`
}

func (h *BooksHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	book := &models.Book{
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		Genres:          req.Genres,
		CoverURL:        req.CoverURL,
		PublicationYear: req.PublicationYear,
		Publisher:       req.Publisher,
		Pages:           req.Pages,
		Quantity:        req.Quantity,
	}
	if err := book.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Validation error",
			"errors":  []string{err.Error()},
		})
		return
	}
	existingID, err := h.DB.BookIDByISBN(r.Context(), book.ISBN)
	if err != nil {
		internalError(w, err)
		return
	}
	if !existingID.IsZero() {
		messageJSON(w, http.StatusConflict, "A book with this ISBN already exists.")
		return
	}
	if _, err := h.DB.InsertBook(r.Context(), book); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Book added successfully.",
		"book":    book,
	})
}

type modBookRequest struct {
	ISBN            string    `json:"isbn"`
	Title           *string   `json:"title"`
	Author          *string   `json:"author"`
	Genres          *[]string `json:"genres"`
	CoverURL        *string   `json:"cover_url"`
	PublicationYear *int      `json:"publication_year"`
	Publisher       *string   `json:"publisher"`
	Pages           *int      `json:"pages"`
	Quantity        *int      `json:"quantity"`
}

// Mod updates a book located by the ISBN in the request body. Only fields
// present in the body are changed.
func (h *BooksHandler) Mod(w http.ResponseWriter, r *http.Request) {
	var req modBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		messageJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	id, err := h.DB.BookIDByISBN(r.Context(), req.ISBN)
	if err != nil {
		internalError(w, err)
		return
	}
	if id.IsZero() {
		messageJSON(w, http.StatusBadRequest, "Invalid book ID.")
		return
	}
	book, err := h.DB.BookByID(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	if book == nil {
		messageJSON(w, http.StatusNotFound, "Book not found.")
		return
	}

	patch := bson.M{}
	if req.Title != nil {
		book.Title = *req.Title
		patch["title"] = *req.Title
	}
	if req.Author != nil {
		book.Author = *req.Author
		patch["author"] = *req.Author
	}
	if req.Genres != nil {
		book.Genres = *req.Genres
		patch["genres"] = *req.Genres
	}
	if req.CoverURL != nil {
		book.CoverURL = *req.CoverURL
		patch["cover_url"] = *req.CoverURL
	}
	if req.PublicationYear != nil {
		book.PublicationYear = *req.PublicationYear
		patch["publication_year"] = *req.PublicationYear
	}
	if req.Publisher != nil {
		book.Publisher = *req.Publisher
		patch["publisher"] = *req.Publisher
	}
	if req.Pages != nil {
		book.Pages = *req.Pages
		patch["pages"] = *req.Pages
	}
	if req.Quantity != nil {
		book.Quantity = *req.Quantity
		patch["quantity"] = *req.Quantity
	}
	if err := book.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Validation error",
			"errors":  []string{err.Error()},
		})
		return
	}
	if len(patch) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Book successfully updated.",
			"book":    book,
		})
		return
	}
	updated, err := h.DB.UpdateBookFields(r.Context(), id, patch)
	if err != nil {
		internalError(w, err)
		return
	}
	if updated == nil {
		messageJSON(w, http.StatusNotFound, "Book not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Book successfully updated.",
		"book":    updated,
	})
}

func (h *BooksHandler) Remove(w http.ResponseWriter, r *http.Request) {
	isbn := chi.URLParam(r, "isbn")
	id, err := h.DB.BookIDByISBN(r.Context(), isbn)
	if err != nil {
		internalError(w, err)
		return
	}
	if id.IsZero() {
		messageJSON(w, http.StatusBadRequest, "Invalid book ID.")
		return
	}
	book, err := h.DB.DeleteBookByID(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	if book == nil {
		messageJSON(w, http.StatusNotFound, "Book not found.")
		return
	}
	if h.S3 != nil && book.CoverS3Key != "" {
		_ = h.S3.Delete(r.Context(), book.CoverS3Key)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Book successfully removed.",
		"book":    book,
	})
}

// parsePage reads page/limit query params with the same defaults the search
// endpoints have always used.
func parsePage(q url.Values) (page, limit int64) {
	page, limit = 1, 10
	if v, err := strconv.ParseInt(q.Get("page"), 10, 64); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.ParseInt(q.Get("limit"), 10, 64); err == nil && v > 0 {
		limit = v
	}
	return page, limit
}

func (h *BooksHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		messageJSON(w, http.StatusBadRequest, "Search query 'q' is required.")
		return
	}
	page, limit := parsePage(r.URL.Query())
	books, total, err := h.DB.SearchBooks(r.Context(), q, page, limit)
	if err != nil {
		internalError(w, err)
		return
	}
	if total == 0 {
		messageJSON(w, http.StatusNotFound, "No books found matching your search.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    strconv.Itoa(len(books)) + " book(s) found.",
		"page":       page,
		"limit":      limit,
		"totalBooks": total,
		"books":      books,
	})
}

// Meta fetches prefill metadata for an ISBN from OpenLibrary (admin helper
// for the add-book form).
func (h *BooksHandler) Meta(w http.ResponseWriter, r *http.Request) {
	isbn := r.URL.Query().Get("isbn")
	if !models.ValidISBN(isbn) {
		messageJSON(w, http.StatusBadRequest, "A valid 'isbn' query parameter is required.")
		return
	}
	meta, err := service.FetchMetadataByISBN(isbn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Failed to fetch metadata.",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// UploadCover stores a cover image for the book in S3 and points cover_url
// at the serving path.
func (h *BooksHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	if h.S3 == nil {
		messageJSON(w, http.StatusServiceUnavailable, "Cover storage is not configured.")
		return
	}
	isbn := chi.URLParam(r, "isbn")
	id, err := h.DB.BookIDByISBN(r.Context(), isbn)
	if err != nil {
		internalError(w, err)
		return
	}
	if id.IsZero() {
		messageJSON(w, http.StatusNotFound, "Book not found.")
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		messageJSON(w, http.StatusBadRequest, "Failed to parse multipart form.")
		return
	}
	file, header, err := r.FormFile("cover")
	if err != nil {
		messageJSON(w, http.StatusBadRequest, "Missing 'cover' file.")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key, err := h.S3.UploadCover(r.Context(), isbn, file, contentType)
	if err != nil {
		internalError(w, err)
		return
	}
	coverURL := "/api/books/" + isbn + "/cover"
	if err := h.DB.SetBookCover(r.Context(), id, coverURL, key); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Cover uploaded successfully.",
		"cover_url": coverURL,
	})
}

// Cover streams the stored cover image. Public so <img src> works without a
// session.
func (h *BooksHandler) Cover(w http.ResponseWriter, r *http.Request) {
	if h.S3 == nil {
		messageJSON(w, http.StatusNotFound, "No cover available.")
		return
	}
	isbn := chi.URLParam(r, "isbn")
	book, err := h.DB.BookByISBN(r.Context(), isbn)
	if err != nil {
		internalError(w, err)
		return
	}
	if book == nil || book.CoverS3Key == "" {
		messageJSON(w, http.StatusNotFound, "No cover available.")
		return
	}
	body, contentType, err := h.S3.GetObject(r.Context(), book.CoverS3Key)
	if err != nil {
		internalError(w, err)
		return
	}
	defer body.Close()
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	io.Copy(w, body)
}
