package session

import (
	"strings"

	"fashionAdvisorAi/internal/stylist"
)

// View is the render-ready snapshot of a session, with the text filter
// already applied. The underlying suggestion list is never mutated by
// filtering.
type View struct {
	ID             string               `json:"id"`
	Phase          Phase                `json:"phase"`
	HasPhoto       bool                 `json:"has_photo"`
	PhotoURL       string               `json:"photo_url,omitempty"`
	Error          string               `json:"error,omitempty"`
	Filter         string               `json:"filter"`
	GeneratingMore bool                 `json:"generating_more"`
	Saved          string               `json:"saved,omitempty"`
	Liked          []string             `json:"liked"`
	Suggestions    []stylist.Suggestion `json:"suggestions"`
	Total          int                  `json:"total_suggestions"`
}

// buildView assembles the session-local part of a view. Callers hold
// the manager lock; preference fields are filled in afterwards.
func buildView(s *Session) View {
	view := View{
		ID:             s.ID,
		Phase:          s.phase,
		HasPhoto:       len(s.photo.Data) > 0,
		Error:          s.errMsg,
		Filter:         s.filter,
		GeneratingMore: s.generatingMore,
		Suggestions:    filterSuggestions(s.suggestions, s.filter),
		Total:          len(s.suggestions),
	}
	if view.HasPhoto {
		view.PhotoURL = "/api/sessions/" + s.ID + "/photo"
	}
	return view
}

// filterSuggestions returns the suggestions whose searchable text
// contains the query, case-insensitively. An empty query returns the
// full list unchanged in order.
func filterSuggestions(suggestions []stylist.Suggestion, query string) []stylist.Suggestion {
	if query == "" {
		out := make([]stylist.Suggestion, len(suggestions))
		copy(out, suggestions)
		return out
	}

	needle := strings.ToLower(query)
	out := make([]stylist.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if strings.Contains(s.SearchText(), needle) {
			out = append(out, s)
		}
	}
	return out
}
