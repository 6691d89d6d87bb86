package prompts

import (
	"fmt"
	"strings"
)

const suggestionPrompt = `Analyze the person in this full-body picture. Based on their body type, complexion, and overall appearance, suggest ten different fashion styles that would look good on them. For each style, provide a name, a detailed description, why this style would be a good fit, and a list of specific clothing items (top, bottom, footwear, accessories).`

const renderPromptTemplate = `Using the person in the provided image as a model, generate a new realistic, full-body photograph of them wearing an outfit in the '%s' style. The outfit should consist of: a %s (top), %s (bottom), %s (footwear), and accessorized with %s. The person's body shape and face should match the original image. The final image should be high-quality and look like a fashion magazine photo.`

// SuggestionPrompt composes the instruction for a style-suggestion
// batch. Excluded names are a best-effort avoidance hint to the model;
// the caller still deduplicates the response.
func SuggestionPrompt(excludedStyles []string) string {
	if len(excludedStyles) == 0 {
		return suggestionPrompt
	}
	return fmt.Sprintf("%s Please provide new suggestions and avoid the following styles which have already been suggested: %s.",
		suggestionPrompt, strings.Join(excludedStyles, ", "))
}

// RenderPrompt composes the rendering instruction for one suggestion.
func RenderPrompt(styleName, top, bottom, footwear, accessories string) string {
	return fmt.Sprintf(renderPromptTemplate, styleName, top, bottom, footwear, accessories)
}

// SuggestionSchema returns the required JSON output schema for the
// suggestion call, in the Generative Language API's schema format.
func SuggestionSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"suggestions": map[string]any{
				"type":        "ARRAY",
				"description": "A list of ten fashion suggestions.",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"styleName": map[string]any{
							"type":        "STRING",
							"description": "The name of the fashion style (e.g., 'Smart Casual').",
						},
						"description": map[string]any{
							"type":        "STRING",
							"description": "A detailed description of the style.",
						},
						"reasoning": map[string]any{
							"type":        "STRING",
							"description": "An explanation of why this style would be a good fit for the person.",
						},
						"clothingItems": map[string]any{
							"type": "OBJECT",
							"properties": map[string]any{
								"top":         map[string]any{"type": "STRING"},
								"bottom":      map[string]any{"type": "STRING"},
								"footwear":    map[string]any{"type": "STRING"},
								"accessories": map[string]any{"type": "STRING"},
							},
							"required": []string{"top", "bottom", "footwear", "accessories"},
						},
					},
					"required": []string{"styleName", "description", "reasoning", "clothingItems"},
				},
			},
		},
		"required": []string{"suggestions"},
	}
}
