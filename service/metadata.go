package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// BookMetadata carries the prefill fields the add-book form can use.
type BookMetadata struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	Publisher       string `json:"publisher,omitempty"`
	PublicationYear int    `json:"publication_year,omitempty"`
	Pages           int    `json:"pages,omitempty"`
	CoverURL        string `json:"cover_url,omitempty"`
}

type openLibraryBook struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	PublishDate   string `json:"publish_date"`
	NumberOfPages int    `json:"number_of_pages"`
	Cover         struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"cover"`
}

var yearPattern = regexp.MustCompile(`\b(1[4-9][0-9]{2}|20[0-9]{2})\b`)

// FetchMetadataByISBN looks the ISBN up on OpenLibrary.
func FetchMetadataByISBN(isbn string) (*BookMetadata, error) {
	url := "https://openlibrary.org/api/books?bibkeys=ISBN:" + isbn + "&format=json&jscmd=data"
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openlibrary returned %d", resp.StatusCode)
	}

	var payload map[string]openLibraryBook
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	entry, ok := payload["ISBN:"+isbn]
	if !ok || entry.Title == "" {
		return nil, fmt.Errorf("no metadata found for ISBN %s", isbn)
	}

	meta := &BookMetadata{
		Title: entry.Title,
		Pages: entry.NumberOfPages,
	}
	if len(entry.Authors) > 0 {
		meta.Author = entry.Authors[0].Name
	}
	if len(entry.Publishers) > 0 {
		meta.Publisher = entry.Publishers[0].Name
	}
	if m := yearPattern.FindString(entry.PublishDate); m != "" {
		meta.PublicationYear, _ = strconv.Atoi(m)
	}
	if entry.Cover.Large != "" {
		meta.CoverURL = entry.Cover.Large
	} else {
		meta.CoverURL = entry.Cover.Medium
	}
	return meta, nil
}
