package models

import (
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ISBNs must be ISBN-13 without separators (978/979 prefix).
var isbnPattern = regexp.MustCompile(`^(978|979)[0-9]{10}$`)

type Book struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Title           string             `bson:"title" json:"title"`
	Author          string             `bson:"author" json:"author"`
	ISBN            string             `bson:"isbn" json:"isbn"`
	Genres          []string           `bson:"genres,omitempty" json:"genres,omitempty"`
	PublicationYear int                `bson:"publication_year,omitempty" json:"publication_year,omitempty"`
	Publisher       string             `bson:"publisher,omitempty" json:"publisher,omitempty"`
	CoverURL        string             `bson:"cover_url,omitempty" json:"cover_url,omitempty"`
	CoverS3Key      string             `bson:"coverS3Key,omitempty" json:"-"`
	Pages           int                `bson:"pages,omitempty" json:"pages,omitempty"`
	Quantity        int                `bson:"quantity" json:"quantity"`
}

// ValidISBN reports whether s is an acceptable ISBN for the catalog.
func ValidISBN(s string) bool {
	return isbnPattern.MatchString(s)
}

// Validate checks document-level constraints before a write.
func (b *Book) Validate() error {
	if b.Title == "" {
		return fmt.Errorf("title is required")
	}
	if b.Author == "" {
		return fmt.Errorf("author is required")
	}
	if !ValidISBN(b.ISBN) {
		return fmt.Errorf("%s is not a valid ISBN", b.ISBN)
	}
	if b.PublicationYear != 0 {
		maxYear := time.Now().Year()
		if b.PublicationYear < 1400 || b.PublicationYear > maxYear {
			return fmt.Errorf("publication_year must be between 1400 and %d", maxYear)
		}
	}
	if b.Pages < 0 {
		return fmt.Errorf("pages must be at least 1")
	}
	if b.Quantity < 0 {
		return fmt.Errorf("quantity cannot be negative")
	}
	return nil
}
