package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"mealscan-backend/models"
)

// ErrSchemaMismatch means the model answered, but its output could not be
// coerced into the analysis schema.
var ErrSchemaMismatch = errors.New("model response does not match analysis schema")

// VisionModel is the black-box multimodal inference contract: image URL plus
// instructions in, schema-conformant analysis out. The raw string is the
// model's unparsed answer, kept for diagnostics.
type VisionModel interface {
	AnalyzeMealImage(ctx context.Context, imageURL, mimeType string) (*AnalysisPayload, string, error)
}

// VisionService calls an OpenAI-compatible chat completions endpoint with an
// image attachment and asks for JSON matching the analysis schema.
type VisionService struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewVisionService() *VisionService {
	baseURL := os.Getenv("VISION_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("VISION_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &VisionService{
		apiKey:  os.Getenv("VISION_API_KEY"),
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

const analysisInstructions = `You are a nutrition analyst. Analyze the meal photo and respond with ONLY a JSON object:
{
  "title": string|null,          // short dish name
  "meal_type": "breakfast"|"lunch"|"dinner"|"snack"|null,
  "summary": {"calories": number, "protein": number, "carbs": number, "fat": number},
  "ingredients": [{"name": string, "quantity": number, "unit": "g"|"kg"|"oz"|"lb"|"ml"|"l"|"cup"|"tbsp"|"tsp"|"whole"|"serving", "calories": number, "protein": number, "carbs": number, "fat": number}],
  "confidence": number           // 0..1, your confidence in the identification
}`

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *VisionService) AnalyzeMealImage(ctx context.Context, imageURL, mimeType string) (*AnalysisPayload, string, error) {
	payload := map[string]any{
		"model": s.model,
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": analysisInstructions},
				{"type": "image_url", "image_url": map[string]any{"url": imageURL}},
			},
		}},
		"response_format": map[string]any{"type": "json_object"},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal vision payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to call vision API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("vision API error %d: %s", resp.StatusCode, string(body))
	}

	var cr chatCompletionResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, "", fmt.Errorf("failed to parse vision JSON: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, string(body), fmt.Errorf("%w: empty choices", ErrSchemaMismatch)
	}

	raw := cr.Choices[0].Message.Content
	analysis, err := coerceAnalysis(raw)
	if err != nil {
		return nil, raw, err
	}
	return analysis, raw, nil
}

// coerceAnalysis validates the model's message content against the analysis
// schema. Unknown ingredient units fail the coercion; an unrecognized meal
// type is merely dropped, since the field is nullable anyway.
func coerceAnalysis(raw string) (*AnalysisPayload, error) {
	var p AnalysisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	for _, ing := range p.Ingredients {
		if !models.IngredientUnits[ing.Unit] {
			return nil, fmt.Errorf("%w: unknown unit %q", ErrSchemaMismatch, ing.Unit)
		}
	}
	if p.MealType != nil && !p.MealType.Valid() {
		p.MealType = nil
	}
	return &p, nil
}
