package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama implements the Extractor interface using a local Ollama server.
// Vision models such as llava or qwen2-vl work best for receipt images.
type Ollama struct {
	baseURL  string
	model    string
	maxBytes int
	client   *http.Client
}

// NewOllama creates a new Ollama Extractor instance
func NewOllama(baseURL string, modelName string, maxBytes int) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	return &Ollama{
		baseURL:  baseURL,
		model:    modelName,
		maxBytes: maxBytes,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models can be slow
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ExtractFromImage sends a receipt image to Ollama and returns its line items
func (o *Ollama) ExtractFromImage(imageData []byte, contentType string) *Result {
	if err := checkImageInput(imageData, contentType, o.maxBytes); err != nil {
		return failure("invalid image: %v", err)
	}

	finalImageData, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return failure("preparing image: %v", err)
	}

	imageBase64 := base64.StdEncoding.EncodeToString(finalImageData)

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading shopping receipts and extracting every purchased line item accurately.",
			},
			{
				Role:    "user",
				Content: lineItemPrompt,
			},
		},
		Images: []string{imageBase64},
	}

	return o.chat(reqBody)
}

// ExtractFromText sends pasted receipt text to Ollama and returns its line items
func (o *Ollama) ExtractFromText(text string) *Result {
	if err := checkTextInput(text); err != nil {
		return failure("invalid text: %v", err)
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading shopping receipts and extracting every purchased line item accurately.",
			},
			{
				Role:    "user",
				Content: fmt.Sprintf(textPrompt, text),
			},
		},
	}

	return o.chat(reqBody)
}

func (o *Ollama) chat(reqBody ollamaChatRequest) *Result {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return failure("marshaling request: %v", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return failure("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return failure("extraction service unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return failure("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return failure("decoding response: %v", err)
	}

	items, err := parseLineItemJSON(chatResp.Message.Content)
	if err != nil {
		return failure("parsing extraction response: %v", err)
	}

	return &Result{OK: true, Items: items}
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
