package pipeline

import (
	"strings"

	"github.com/FranksOps/grounder/internal/extract"
	"github.com/FranksOps/grounder/internal/model"
)

// citationSnippet prefers sentences of the content that mention a query
// term, then the description, then the leading content.
func citationSnippet(s *model.Source, terms []string, maxLen int) string {
	lower := strings.ToLower(s.ExtractedContent)
	for _, t := range terms {
		if t != "" && strings.Contains(lower, t) {
			return extract.Snippet(s.ExtractedContent, terms, maxLen)
		}
	}
	if s.Description != "" {
		return extract.Snippet(s.Description, nil, maxLen)
	}
	return extract.Snippet(s.ExtractedContent, nil, maxLen)
}
