package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	maxBytes int
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string, maxBytes int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:   client,
		model:    client.GenerativeModel(modelName),
		maxBytes: maxBytes,
	}, nil
}

// ExtractFromImage sends a receipt image to Gemini and returns its line items.
// Exactly one request is made; any failure is carried in the Result.
func (g *Gemini) ExtractFromImage(imageData []byte, contentType string) *Result {
	if err := checkImageInput(imageData, contentType, g.maxBytes); err != nil {
		return failure("invalid image: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	finalImageData, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return failure("preparing image: %v", err)
	}

	// genai.ImageData expects the format suffix, not the full MIME type.
	// prepareImageData always yields PNG.
	parts := []genai.Part{
		genai.ImageData("png", finalImageData),
		genai.Text(lineItemPrompt),
	}

	return g.generate(ctx, parts)
}

// ExtractFromText sends pasted receipt text to Gemini and returns its line items
func (g *Gemini) ExtractFromText(text string) *Result {
	if err := checkTextInput(text); err != nil {
		return failure("invalid text: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	parts := []genai.Part{
		genai.Text(fmt.Sprintf(textPrompt, text)),
	}

	return g.generate(ctx, parts)
}

func (g *Gemini) generate(ctx context.Context, parts []genai.Part) *Result {
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return failure("extraction service unavailable: %v", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return failure("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	items, err := parseLineItemJSON(responseText.String())
	if err != nil {
		return failure("parsing extraction response: %v", err)
	}

	return &Result{OK: true, Items: items}
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
