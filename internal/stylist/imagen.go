package stylist

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"fashionAdvisorAi/internal/prompts"
)

// VertexImagen implements Renderer via Vertex AI Imagen edits, using
// the uploaded photo as the edit reference.
type VertexImagen struct {
	projectID          string
	location           string
	model              string
	apiKey             string
	serviceAccount     string
	serviceAccountJSON string
}

// VertexImagenConfig describes how to connect to Imagen.
type VertexImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	APIKey             string
	ServiceAccount     string
	ServiceAccountJSON string
}

// NewVertexImagen wires a VertexImagen renderer.
func NewVertexImagen(cfg VertexImagenConfig) *VertexImagen {
	return &VertexImagen{
		projectID:          strings.TrimSpace(cfg.ProjectID),
		location:           strings.TrimSpace(cfg.Location),
		model:              strings.TrimSpace(cfg.Model),
		apiKey:             strings.TrimSpace(cfg.APIKey),
		serviceAccount:     strings.TrimSpace(cfg.ServiceAccount),
		serviceAccountJSON: strings.TrimSpace(cfg.ServiceAccountJSON),
	}
}

// RenderOutfit runs an Imagen edit request and returns the rendered
// outfit as a data URI.
func (v *VertexImagen) RenderOutfit(ctx context.Context, suggestion Suggestion, photo Photo) (string, error) {
	if v == nil || v.projectID == "" || v.location == "" || v.model == "" {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("imagen: missing project/location/model")}
	}
	if len(photo.Data) == 0 {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("imagen: reference image is required")}
	}

	items := suggestion.ClothingItems
	prompt := prompts.RenderPrompt(suggestion.StyleName, items.Top, items.Bottom, items.Footwear, items.Accessories)

	instance, err := structpb.NewValue(map[string]any{
		"prompt": prompt,
		"image": map[string]any{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(photo.Data),
		},
	})
	if err != nil {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: err}
	}

	params, err := structpb.NewValue(map[string]any{
		"sampleCount": 1,
		"editMode":    "inpainting-free-form",
	})
	if err != nil {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: err}
	}

	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", v.projectID, v.location, v.model)
	options := []option.ClientOption{option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", v.location))}
	if v.serviceAccountJSON != "" {
		options = append(options, option.WithCredentialsJSON([]byte(v.serviceAccountJSON)))
	} else if v.serviceAccount != "" {
		options = append(options, option.WithCredentialsFile(v.serviceAccount))
	} else if v.apiKey != "" {
		options = append(options, option.WithAPIKey(v.apiKey))
	}

	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("imagen: prediction client: %w", err)}
	}
	defer client.Close()

	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("imagen: predict: %w", err)}
	}
	if len(resp.Predictions) == 0 {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("imagen: empty prediction response")}
	}

	field := resp.Predictions[0].GetStructValue().GetFields()["bytesBase64Encoded"]
	if field == nil {
		return "", &RenderError{StyleName: suggestion.StyleName, Err: fmt.Errorf("imagen: prediction missing bytes")}
	}

	return fmt.Sprintf("data:image/png;base64,%s", field.GetStringValue()), nil
}
