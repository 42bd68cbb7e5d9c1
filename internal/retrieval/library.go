package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/fixmate/fixmate/pkg/procedure"
)

// LibraryResolver matches issues against the locally loaded procedure
// library by keyword overlap. Used in demo mode and as the offline path.
type LibraryResolver struct {
	library *procedure.Library
}

// NewLibraryResolver creates a resolver over the given library.
func NewLibraryResolver(lib *procedure.Library) *LibraryResolver {
	return &LibraryResolver{library: lib}
}

// Resolve scores every procedure against the issue text and returns the
// best match. Ties break on procedure id so results are stable.
func (r *LibraryResolver) Resolve(_ context.Context, issue, modelNumber string) (*procedure.Definition, error) {
	terms := tokenize(issue + " " + modelNumber)
	if len(terms) == 0 {
		return nil, ErrNotFound
	}

	all := r.library.All()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var best *procedure.Definition
	bestScore := 0
	for _, id := range ids {
		def := all[id]
		if score := matchScore(def, terms); score > bestScore {
			best = def
			bestScore = score
		}
	}

	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func matchScore(def *procedure.Definition, terms map[string]bool) int {
	score := 0
	for _, kw := range def.Keywords {
		for t := range tokenize(kw) {
			if terms[t] {
				// Curated keywords weigh more than title words.
				score += 2
			}
		}
	}
	for t := range tokenize(def.Title) {
		if terms[t] {
			score++
		}
	}
	return score
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) > 2 {
			out[f] = true
		}
	}
	return out
}
