// Package saved persists query/result sets to a local bbolt file when a
// caller asks for them to be kept. This is a convenience side-store, not part
// of the index: the vector database remains the only source of truth.
package saved

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/snapdex/snapdex/internal/domain"
)

var bucketSearches = []byte("searches")

// Store is a bbolt-backed archive of saved searches.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the saved-search database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open saved-search db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSearches)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Search is one archived search: the query as issued plus the ranked results.
type Search struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"` // text / image
	Query           string    `json:"query,omitempty"`
	TranslatedQuery string    `json:"translated_query,omitempty"`
	Category        string    `json:"category,omitempty"`
	K               int       `json:"k"`
	SavedAt         time.Time `json:"saved_at"`
	Results         []Result  `json:"results"`
}

// Result mirrors domain.SearchResult in a JSON-friendly shape.
type Result struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// FromDomain converts ranked domain results into the archive shape.
func FromDomain(results []domain.SearchResult) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{
			ID:       r.ID(),
			Filename: r.Filename(),
			Path:     r.Path(),
			Category: r.Category(),
			Score:    r.Score(),
			Rank:     r.Rank(),
		}
	}
	return out
}

// Put archives a search under its ID.
func (s *Store) Put(search Search) error {
	if search.ID == "" {
		return fmt.Errorf("search id is required")
	}
	data, err := json.Marshal(search)
	if err != nil {
		return fmt.Errorf("marshal search: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSearches).Put([]byte(search.ID), data)
	})
	if err != nil {
		return fmt.Errorf("put search %s: %w", search.ID, err)
	}
	return nil
}

// Get returns an archived search by ID.
func (s *Store) Get(id string) (Search, error) {
	var search Search
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSearches).Get([]byte(id))
		if data == nil {
			return domain.ErrNotFound
		}
		return json.Unmarshal(data, &search)
	})
	if err != nil {
		return Search{}, err
	}
	return search, nil
}

// List returns all archived searches.
func (s *Store) List() ([]Search, error) {
	var searches []Search
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSearches).ForEach(func(_, v []byte) error {
			var search Search
			if err := json.Unmarshal(v, &search); err != nil {
				return err
			}
			searches = append(searches, search)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	return searches, nil
}
