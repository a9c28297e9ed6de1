package image

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/snapdex/snapdex/internal/domain"
)

// Hash field names for image records.
const (
	fieldFilename  = "filename"
	fieldPath      = "path"
	fieldCategory  = "category"
	fieldVector    = "vector"
	fieldIndexedAt = "indexed_at"
)

// buildHashFields converts an ImageRecord into a flat map[string]string for HSET.
func buildHashFields(rec domain.ImageRecord) map[string]string {
	return map[string]string{
		fieldFilename:  rec.Filename(),
		fieldPath:      rec.Path(),
		fieldCategory:  rec.Category(),
		fieldVector:    vectorToBytes(rec.Vector()),
		fieldIndexedAt: strconv.FormatInt(rec.IndexedAt(), 10),
	}
}

// parseHashFields converts a flat hash map back into an ImageRecord.
func parseHashFields(id string, m map[string]string) domain.ImageRecord {
	indexedAt, _ := strconv.ParseInt(m[fieldIndexedAt], 10, 64)
	return domain.ReconstructImageRecord(
		id,
		m[fieldFilename],
		m[fieldPath],
		m[fieldCategory],
		bytesToVector(m[fieldVector]),
		indexedAt,
	)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
