// Package domain holds the core types of the image index: records, search
// results, and the embedding contracts shared by all layers.
package domain

import "errors"

// ImageRecord is one indexed image: its embedding plus file metadata.
// Records are immutable after creation; re-ingesting the same relative path
// overwrites the previous record (idempotent upsert).
type ImageRecord struct {
	id        string
	filename  string
	path      string
	category  string
	vector    []float32
	indexedAt int64 // unix millis
}

// NewImageRecord builds a validated image record.
func NewImageRecord(id, filename, path, category string, vector []float32, indexedAt int64) (ImageRecord, error) {
	if id == "" {
		return ImageRecord{}, errors.New("record id is required")
	}
	if filename == "" {
		return ImageRecord{}, errors.New("filename is required")
	}
	if len(vector) == 0 {
		return ImageRecord{}, errors.New("vector is required")
	}
	return ImageRecord{
		id:        id,
		filename:  filename,
		path:      path,
		category:  category,
		vector:    vector,
		indexedAt: indexedAt,
	}, nil
}

// ReconstructImageRecord rebuilds a record from storage without validation.
func ReconstructImageRecord(id, filename, path, category string, vector []float32, indexedAt int64) ImageRecord {
	return ImageRecord{
		id:        id,
		filename:  filename,
		path:      path,
		category:  category,
		vector:    vector,
		indexedAt: indexedAt,
	}
}

func (r ImageRecord) ID() string        { return r.id }
func (r ImageRecord) Filename() string  { return r.filename }
func (r ImageRecord) Path() string      { return r.path }
func (r ImageRecord) Category() string  { return r.category }
func (r ImageRecord) Vector() []float32 { return r.vector }
func (r ImageRecord) IndexedAt() int64  { return r.indexedAt }
