package domain

// SearchResult is a single ranked hit from a similarity query. Ephemeral:
// constructed per query, never persisted unless the caller asks to save it.
type SearchResult struct {
	id       string
	filename string
	path     string
	category string
	score    float64
	rank     int
}

// NewSearchResult builds a ranked search hit.
func NewSearchResult(id, filename, path, category string, score float64, rank int) SearchResult {
	return SearchResult{
		id:       id,
		filename: filename,
		path:     path,
		category: category,
		score:    score,
		rank:     rank,
	}
}

func (r SearchResult) ID() string       { return r.id }
func (r SearchResult) Filename() string { return r.filename }
func (r SearchResult) Path() string     { return r.path }
func (r SearchResult) Category() string { return r.category }
func (r SearchResult) Score() float64   { return r.score }
func (r SearchResult) Rank() int        { return r.rank }
