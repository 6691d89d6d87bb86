package storage

import (
	"context"
	"encoding/json"
	"log"
)

// FeedbackRecord pairs a suggestion's style name with a like/dislike
// verdict. The json field names are part of the stored record format.
type FeedbackRecord struct {
	SuggestionID string `json:"suggestionId"`
	Feedback     string `json:"feedback"`
}

// Preferences wraps a KeyValue store with the three preference records
// the UI relies on. Every operation is best-effort: storage failures
// are logged and never propagate, loads return empty values instead.
type Preferences struct {
	kv KeyValue
}

// NewPreferences binds a preference layer to the given store.
func NewPreferences(kv KeyValue) *Preferences {
	return &Preferences{kv: kv}
}

// LoadFeedback returns all persisted feedback records. Missing or
// malformed content reads as an empty list.
func (p *Preferences) LoadFeedback(ctx context.Context) []FeedbackRecord {
	raw, ok, err := p.kv.Load(ctx, KeyFeedback)
	if err != nil {
		log.Printf("preferences: load feedback: %v", err)
		return nil
	}
	if !ok {
		return nil
	}

	var records []FeedbackRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		log.Printf("preferences: decode feedback: %v", err)
		return nil
	}
	return records
}

// SaveFeedback replaces the entire feedback record list.
func (p *Preferences) SaveFeedback(ctx context.Context, records []FeedbackRecord) {
	if records == nil {
		records = []FeedbackRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		log.Printf("preferences: encode feedback: %v", err)
		return
	}
	if err := p.kv.Save(ctx, KeyFeedback, string(raw)); err != nil {
		log.Printf("preferences: save feedback: %v", err)
	}
}

// LoadLiked returns the liked style names in insertion order.
func (p *Preferences) LoadLiked(ctx context.Context) []string {
	raw, ok, err := p.kv.Load(ctx, KeyLiked)
	if err != nil {
		log.Printf("preferences: load liked: %v", err)
		return nil
	}
	if !ok {
		return nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		log.Printf("preferences: decode liked: %v", err)
		return nil
	}
	return names
}

// ToggleLiked removes the style name from the liked set when present,
// otherwise appends it, and writes the full set back.
func (p *Preferences) ToggleLiked(ctx context.Context, styleName string) {
	current := p.LoadLiked(ctx)

	next := make([]string, 0, len(current)+1)
	found := false
	for _, name := range current {
		if name == styleName {
			found = true
			continue
		}
		next = append(next, name)
	}
	if !found {
		next = append(next, styleName)
	}

	raw, err := json.Marshal(next)
	if err != nil {
		log.Printf("preferences: encode liked: %v", err)
		return
	}
	if err := p.kv.Save(ctx, KeyLiked, string(raw)); err != nil {
		log.Printf("preferences: save liked: %v", err)
	}
}

// LoadSaved returns the saved style name, or "" when none is marked.
func (p *Preferences) LoadSaved(ctx context.Context) string {
	value, ok, err := p.kv.Load(ctx, KeySaved)
	if err != nil {
		log.Printf("preferences: load saved: %v", err)
		return ""
	}
	if !ok {
		return ""
	}
	return value
}

// SaveSaved stores the saved style name. An empty name removes the key
// rather than writing a sentinel value.
func (p *Preferences) SaveSaved(ctx context.Context, styleName string) {
	if styleName == "" {
		if err := p.kv.Remove(ctx, KeySaved); err != nil {
			log.Printf("preferences: clear saved: %v", err)
		}
		return
	}
	if err := p.kv.Save(ctx, KeySaved, styleName); err != nil {
		log.Printf("preferences: save saved: %v", err)
	}
}
