package stylist

import "strings"

// Image generation states for a suggestion. The zero value means no
// render has been requested yet.
const (
	ImageStatusPending = "pending"
	ImageStatusReady   = "ready"
	ImageStatusFailed  = "failed"
)

// Feedback verdicts. The zero value means neutral.
const (
	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

// ClothingItems lists the four fixed outfit slots of a suggestion.
type ClothingItems struct {
	Top         string `json:"top"`
	Bottom      string `json:"bottom"`
	Footwear    string `json:"footwear"`
	Accessories string `json:"accessories"`
}

// Suggestion is one AI-proposed fashion style. The style name doubles
// as the identity key across session state and persisted preferences;
// two suggestions sharing a name are indistinguishable and collide.
type Suggestion struct {
	StyleName     string        `json:"styleName"`
	Description   string        `json:"description"`
	Reasoning     string        `json:"reasoning"`
	ClothingItems ClothingItems `json:"clothingItems"`
	ImageStatus   string        `json:"imageStatus,omitempty"`
	ImageData     string        `json:"imageData,omitempty"`
	ImageURL      string        `json:"imageUrl,omitempty"`
	Feedback      string        `json:"feedback,omitempty"`
}

// SearchText returns the lowercased haystack the text filter matches
// against: style name, description, and the four clothing fields.
func (s Suggestion) SearchText() string {
	return strings.ToLower(strings.Join([]string{
		s.StyleName,
		s.Description,
		s.ClothingItems.Top,
		s.ClothingItems.Bottom,
		s.ClothingItems.Footwear,
		s.ClothingItems.Accessories,
	}, " "))
}

// Photo is an uploaded base image.
type Photo struct {
	Data []byte
	MIME string
}
