package stylist

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"fashionAdvisorAi/internal/prompts"
)

// StyleAdvisor produces structured outfit suggestions for a photo.
type StyleAdvisor interface {
	SuggestStyles(ctx context.Context, photo Photo, excludedStyles []string) ([]Suggestion, error)
}

const (
	MaxPhotoBytes          = 7 * 1024 * 1024
	defaultSuggestionModel = "gemini-2.5-flash"
	defaultEndpointBase    = "https://generativelanguage.googleapis.com"
)

// GeminiAdvisor implements StyleAdvisor via the Generative Language
// API, constraining the response with a required JSON schema.
type GeminiAdvisor struct {
	apiKey       string
	model        string
	endpointBase string
	client       *http.Client
	tokenSource  oauth2.TokenSource
	cache        *cache.Cache
}

// AdvisorConfig carries the advisor's connection settings. A zero
// Timeout means requests are not bounded; a zero CacheTTL disables
// the response cache.
type AdvisorConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	CacheTTL    time.Duration
	TokenSource oauth2.TokenSource
}

// NewGeminiAdvisor constructs an advisor for the configured model.
func NewGeminiAdvisor(cfg AdvisorConfig) *GeminiAdvisor {
	model := strings.TrimPrefix(strings.TrimSpace(cfg.Model), "models/")
	if model == "" {
		model = defaultSuggestionModel
	}

	var responseCache *cache.Cache
	if cfg.CacheTTL > 0 {
		responseCache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	return &GeminiAdvisor{
		apiKey:       cfg.APIKey,
		model:        model,
		endpointBase: defaultEndpointBase,
		client:       &http.Client{Timeout: cfg.Timeout},
		tokenSource:  cfg.TokenSource,
		cache:        responseCache,
	}
}

// SuggestStyles asks the model for ten structured style suggestions,
// validated field by field. Identical requests within the cache TTL
// are answered from memory.
func (a *GeminiAdvisor) SuggestStyles(ctx context.Context, photo Photo, excludedStyles []string) ([]Suggestion, error) {
	if len(photo.Data) == 0 {
		return nil, &SuggestionError{Err: fmt.Errorf("empty photo data")}
	}
	if len(photo.Data) > MaxPhotoBytes {
		return nil, &SuggestionError{Err: fmt.Errorf("photo exceeds %d bytes", MaxPhotoBytes)}
	}

	cacheKey := a.cacheKey(photo, excludedStyles)
	if a.cache != nil {
		if cached, ok := a.cache.Get(cacheKey); ok {
			if suggestions, ok := cached.([]Suggestion); ok {
				return suggestions, nil
			}
		}
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{
						"inline_data": map[string]string{
							"mime_type": photo.MIME,
							"data":      base64.StdEncoding.EncodeToString(photo.Data),
						},
					},
					{"text": prompts.SuggestionPrompt(excludedStyles)},
				},
			},
		},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   prompts.SuggestionSchema(),
		},
	}

	text, err := a.generate(ctx, payload)
	if err != nil {
		return nil, &SuggestionError{Err: err}
	}

	suggestions, err := parseSuggestions(text)
	if err != nil {
		return nil, &SuggestionError{Err: err}
	}

	if a.cache != nil {
		a.cache.Set(cacheKey, suggestions, cache.DefaultExpiration)
	}
	return suggestions, nil
}

func (a *GeminiAdvisor) generate(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.endpointBase, url.PathEscape(a.model))
	if a.tokenSource == nil {
		if strings.TrimSpace(a.apiKey) == "" {
			return "", fmt.Errorf("missing API key or service account credentials")
		}
		endpoint = fmt.Sprintf("%s?key=%s", endpoint, url.QueryEscape(a.apiKey))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if a.tokenSource != nil {
		token, err := a.tokenSource.Token()
		if err != nil {
			return "", fmt.Errorf("fetch oauth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, failure.Error.Message)
	}

	var completion struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(completion.Candidates) == 0 || len(completion.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return strings.TrimSpace(completion.Candidates[0].Content.Parts[0].Text), nil
}

func (a *GeminiAdvisor) cacheKey(photo Photo, excludedStyles []string) string {
	digest := sha256.Sum256(photo.Data)
	return fmt.Sprintf("%x|%s", digest, strings.Join(excludedStyles, ","))
}

func parseSuggestions(text string) ([]Suggestion, error) {
	var envelope struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &envelope); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
	}

	if len(envelope.Suggestions) == 0 {
		return nil, fmt.Errorf("response contains no suggestions")
	}

	for i, s := range envelope.Suggestions {
		if err := validateSuggestion(s); err != nil {
			return nil, fmt.Errorf("suggestion %d: %w", i, err)
		}
	}
	return envelope.Suggestions, nil
}

func validateSuggestion(s Suggestion) error {
	fields := map[string]string{
		"styleName":                 s.StyleName,
		"description":               s.Description,
		"reasoning":                 s.Reasoning,
		"clothingItems.top":         s.ClothingItems.Top,
		"clothingItems.bottom":      s.ClothingItems.Bottom,
		"clothingItems.footwear":    s.ClothingItems.Footwear,
		"clothingItems.accessories": s.ClothingItems.Accessories,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("missing required field %s", name)
		}
	}
	return nil
}
