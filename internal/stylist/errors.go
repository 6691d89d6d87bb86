package stylist

import "fmt"

// SuggestionError reports a failed or malformed style-suggestion call.
type SuggestionError struct {
	Err error
}

func (e *SuggestionError) Error() string {
	return fmt.Sprintf("style suggestions: %v", e.Err)
}

func (e *SuggestionError) Unwrap() error { return e.Err }

// RenderError reports a failed outfit render for one suggestion.
type RenderError struct {
	StyleName string
	Err       error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %q: %v", e.StyleName, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
