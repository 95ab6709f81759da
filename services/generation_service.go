package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"moodboardAPI/internal/types/moodboard"
)

// GenerationService talks to the OpenAI-compatible text and image endpoints.
// The providers are treated as opaque remote calls: one request each, one
// retry on transient failure, no streaming.
type GenerationService struct {
	client  *http.Client
	baseURL string
	apiKey  string

	textModel  string
	imageModel string
}

func NewGenerationService() *GenerationService {
	baseURL := os.Getenv("OPENAI_API_BASE")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &GenerationService{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  os.Getenv("OPENAI_API_KEY"),

		textModel:  "gpt-4o-mini",
		imageModel: "dall-e-3",
	}
}

// GenerateDescription produces the design concept text for a questionnaire.
func (s *GenerationService) GenerateDescription(ctx context.Context, req *moodboard.GenerateRequest) (string, error) {
	prompt := buildDesignPrompt(req)

	body := map[string]interface{}{
		"model": s.textModel,
		"messages": []map[string]string{
			{"role": "system", "content": "You are an interior designer writing short, vivid mood board concepts."},
			{"role": "user", "content": prompt},
		},
		"max_tokens": 400,
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := s.post(ctx, "/chat/completions", body, &parsed); err != nil {
		return "", fmt.Errorf("text generation failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("text generation returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// GenerateImage renders the mood board image and returns its hosted URL.
func (s *GenerationService) GenerateImage(ctx context.Context, req *moodboard.GenerateRequest) (string, error) {
	body := map[string]interface{}{
		"model":  s.imageModel,
		"prompt": fmt.Sprintf("Interior design mood board photo collage: %s %s, color palette %s", req.Style, req.RoomType, req.Palette),
		"n":      1,
		"size":   "1024x1024",
	}

	var parsed struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := s.post(ctx, "/images/generations", body, &parsed); err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", fmt.Errorf("image generation returned no image")
	}
	return parsed.Data[0].URL, nil
}

func buildDesignPrompt(req *moodboard.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a mood board concept for a %s in %s style with a %s palette.", req.RoomType, req.Style, req.Palette)
	if req.Budget != "" {
		fmt.Fprintf(&b, " Budget level: %s.", req.Budget)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, " Client notes: %s", req.Notes)
	}
	return b.String()
}

// post sends one JSON request and retries once on a network error or 5xx.
func (s *GenerationService) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			log.Printf("Retrying %s after error: %v", path, lastErr)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("provider returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			// Client errors are not retryable. Provider internals stay in the
			// server log; callers get the status code only.
			log.Printf("Provider %s returned %d: %s", path, resp.StatusCode, truncate(string(respBody), 500))
			return fmt.Errorf("provider returned %d", resp.StatusCode)
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
		return nil
	}
	return lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
