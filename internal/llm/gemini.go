package llm

import (
	"context"
	"errors"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli    *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, config: geminiConfig()}, nil
}

func geminiConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemInstructions}}},
		Temperature:       genai.Ptr[float32](0.7),
		TopP:              genai.Ptr[float32](0.95),
		TopK:              genai.Ptr[float32](40),
		MaxOutputTokens:   800,
	}
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) Reply(ctx context.Context, history []Turn) (string, error) {
	const op = "llm.gemini"
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, toGeminiContents(history), g.config)
	if err != nil {
		return "", classify(op, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", classify(op, ErrEmptyReply)
	}
	var texts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	out := joinText(texts)
	if out == "" {
		return "", classify(op, ErrEmptyReply)
	}
	return out, nil
}

// toGeminiContents maps the history; assistant turns use the "model" role.
func toGeminiContents(history []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		var parts []*genai.Part
		if t.Content != "" {
			parts = append(parts, &genai.Part{Text: t.Content})
		}
		if t.Image.Inline() {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeOrDefault(t.Image.MIMEType), Data: t.Image.Data}})
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func mimeOrDefault(m string) string {
	if m == "" {
		return "image/jpeg"
	}
	return m
}
