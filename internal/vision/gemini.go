package vision

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/reinvest-cli/internal/resilience"
)

// GeminiModel sends prompts through the Gemini API.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini-backed model. An empty baseURL keeps the
// SDK default endpoint.
func NewGeminiModel(ctx context.Context, apiKey, baseURL, model string) (*GeminiModel, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "vision: create gemini client")
	}
	return &GeminiModel{client: client, model: model}, nil
}

// Name implements Model.
func (m *GeminiModel) Name() string { return "gemini" }

// Complete implements Model.
func (m *GeminiModel) Complete(ctx context.Context, p Prompt) (string, error) {
	var parts []*genai.Part
	if len(p.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(p.Image, mediaType(p)))
	}
	parts = append(parts, genai.NewPartFromText(p.Question))

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0)),
		MaxOutputTokens: int32(maxTokens(p)),
	}
	if p.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, gc)
	if err != nil {
		wrapped := eris.Wrap(err, "vision: gemini")
		if geminiTransient(err) {
			return "", resilience.NewTransientError(wrapped, 0)
		}
		return "", wrapped
	}
	return resp.Text(), nil
}

func geminiTransient(err error) bool {
	msg := err.Error()
	for _, s := range []string{"RESOURCE_EXHAUSTED", "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return resilience.IsTransient(err)
}
