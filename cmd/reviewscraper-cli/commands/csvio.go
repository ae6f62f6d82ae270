package commands

import (
	"bookreviews-backend/lib/review"
	"bookreviews-backend/lib/scrapers/goodreads/search"
	"bookreviews-backend/services/reviewscraper"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// input column -> accepted header spellings
var columnAliases = map[string][]string{
	"id":     {"book id", "book_id", "bookid", "id"},
	"title":  {"title", "book title", "book_title"},
	"author": {"author", "authors", "author name", "author_name"},
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// readBooks reads the books of a csv with at least a title and author
// column, rows without an id are numbered by their position.
func readBooks(r io.Reader) ([]search.BookQuery, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input")
	}
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	for i, h := range header {
		h = normalizeHeader(h)
		for column, aliases := range columnAliases {
			if _, seen := index[column]; seen {
				continue
			}
			for _, alias := range aliases {
				if h == alias {
					index[column] = i
					break
				}
			}
		}
	}
	for _, required := range []string{"title", "author"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing %q column in header %v", required, header)
		}
	}

	field := func(row []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var books []search.BookQuery
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		book := search.BookQuery{
			ID:     field(row, "id"),
			Title:  field(row, "title"),
			Author: field(row, "author"),
		}
		if book.Title == "" && book.Author == "" {
			continue
		}
		if book.ID == "" {
			book.ID = strconv.Itoa(line - 1)
		}
		books = append(books, book)
	}
	return books, nil
}

func readBooksFile(path string) ([]search.BookQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readBooks(f)
}

func writeRecords(w io.Writer, records []review.Record) error {
	writer := csv.NewWriter(w)
	err := writer.Write(review.Columns)
	if err != nil {
		return err
	}
	for _, r := range records {
		err = writer.Write(r.Row())
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

var lookupColumns = []string{"book_id", "title", "author", "goodreads_url", "score", "status"}

func writeLookups(w io.Writer, books []reviewscraper.BookResult) error {
	writer := csv.NewWriter(w)
	err := writer.Write(lookupColumns)
	if err != nil {
		return err
	}
	for _, b := range books {
		score := ""
		if b.Book.PageReference != "" {
			score = strconv.FormatFloat(b.Book.Score.Combined, 'f', 1, 64)
		}
		err = writer.Write([]string{
			b.Query.ID,
			b.Query.Title,
			b.Query.Author,
			b.Book.PageReference,
			score,
			string(b.Status),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// writeFile creates `path` and writes to it with `write`.
func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = write(f)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
