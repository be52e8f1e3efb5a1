package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role constants for user authorization.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

var ValidRoles = []string{RoleStudent, RoleAdmin}

// Loan is an entry in a user's issued_books list. book_id is a lookup key
// into the books collection, not an owning reference; author/title/isbn are
// denormalized from the book at issue time.
type Loan struct {
	BookID       primitive.ObjectID `bson:"book_id" json:"book_id"`
	Author       string             `bson:"author" json:"author"`
	Title        string             `bson:"title" json:"title"`
	ISBN         string             `bson:"isbn" json:"isbn"`
	IssuedDate   time.Time          `bson:"issued_date" json:"issued_date"`
	DueDate      time.Time          `bson:"due_date" json:"due_date"`
	Returned     bool               `bson:"returned" json:"returned"`
	ReturnedDate *time.Time         `bson:"returned_date,omitempty" json:"returned_date"`
}

type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Name        string             `bson:"name" json:"name"`
	Email       string             `bson:"email" json:"email"`
	UserName    string             `bson:"userName" json:"userName"`
	Password    string             `bson:"password" json:"-"` // bcrypt hash
	Role        string             `bson:"role" json:"role"`
	IssuedBooks []Loan             `bson:"issued_books" json:"issued_books"`
}

func RoleValid(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Normalize lowercases email and userName. Uniqueness across users is
// case-insensitive, so every write path must call this first.
func (u *User) Normalize() {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.UserName = strings.ToLower(strings.TrimSpace(u.UserName))
}

// Validate checks document-level constraints before a write.
func (u *User) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.UserName == "" {
		return fmt.Errorf("userName is required")
	}
	if u.Password == "" {
		return fmt.Errorf("password is required")
	}
	if !RoleValid(u.Role) {
		return fmt.Errorf("role must be one of %s", strings.Join(ValidRoles, ", "))
	}
	return nil
}

// OpenLoanCount returns the number of loans not yet returned.
func (u *User) OpenLoanCount() int {
	n := 0
	for _, l := range u.IssuedBooks {
		if !l.Returned {
			n++
		}
	}
	return n
}

// HasOpenLoan reports whether the user holds an unreturned loan for isbn.
func (u *User) HasOpenLoan(isbn string) bool {
	for _, l := range u.IssuedBooks {
		if !l.Returned && l.ISBN == isbn {
			return true
		}
	}
	return false
}

// LoanIndexByISBN returns the index of the first issued_books entry matching
// isbn, open or not, or -1. Return and Renew match on ISBN alone; only the
// duplicate check in Issue filters by returned state.
func (u *User) LoanIndexByISBN(isbn string) int {
	for i, l := range u.IssuedBooks {
		if l.ISBN == isbn {
			return i
		}
	}
	return -1
}
