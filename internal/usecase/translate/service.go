// Package translate exposes query rewriting as a standalone operation, so
// callers can preview how a conversational query turns into a caption-style
// phrase before searching with it.
package translate

import (
	"context"
	"strings"

	"github.com/snapdex/snapdex/internal/domain"
)

// Service wraps a translator with input validation.
type Service struct {
	translator domain.Translator
}

func New(translator domain.Translator) *Service {
	return &Service{translator: translator}
}

// Enabled reports whether a translator is configured.
func (s *Service) Enabled() bool {
	return s.translator != nil
}

// Translate rewrites a query. Without a configured translator the original
// query comes back unchanged with Applied false.
func (s *Service) Translate(ctx context.Context, query string) (domain.Translation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Translation{}, domain.ErrEmptyQuery
	}
	if s.translator == nil {
		return domain.Translation{Query: query, Applied: false}, nil
	}
	return s.translator.Translate(ctx, query), nil
}
