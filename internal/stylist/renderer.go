package stylist

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"fashionAdvisorAi/internal/prompts"
)

// Renderer produces one synthetic outfit photo for a suggestion,
// returned as a directly displayable data URI.
type Renderer interface {
	RenderOutfit(ctx context.Context, suggestion Suggestion, photo Photo) (string, error)
}

const defaultImageModel = "gemini-2.5-flash-image"

// GeminiRenderer renders outfits via Gemini inline image outputs.
type GeminiRenderer struct {
	apiKey  string
	model   string
	timeout time.Duration
}

// NewGeminiRenderer constructs a renderer able to request inline
// images. A zero timeout leaves render calls unbounded.
func NewGeminiRenderer(apiKey, model string, timeout time.Duration) *GeminiRenderer {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = defaultImageModel
	}
	return &GeminiRenderer{
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
	}
}

// RenderOutfit requests a full-body photograph of the person wearing
// the suggested outfit, with the base photo as the model reference.
func (g *GeminiRenderer) RenderOutfit(ctx context.Context, suggestion Suggestion, photo Photo) (string, error) {
	if g == nil || strings.TrimSpace(g.apiKey) == "" {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("renderer unavailable")}
	}
	if len(photo.Data) == 0 {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("empty photo data")}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	client, err := genai.NewClient(callCtx, &genai.ClientConfig{
		APIKey: g.apiKey,
	})
	if err != nil {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("create genai client: %w", err)}
	}

	items := suggestion.ClothingItems
	prompt := prompts.RenderPrompt(suggestion.StyleName, items.Top, items.Bottom, items.Footwear, items.Accessories)

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(photo.Data, photo.MIME),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(callCtx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("response has no candidates")}
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if strings.TrimSpace(mime) == "" {
			mime = "image/png"
		}
		encoded := base64.StdEncoding.EncodeToString(part.InlineData.Data)
		return fmt.Sprintf("data:%s;base64,%s", mime, encoded), nil
	}

	return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("no image data found in response")}
}
