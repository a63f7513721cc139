package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

type OpenAILLM struct {
	apiKey string
	url    string
	model  string
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []orchestrator.Message, image *orchestrator.ImageRef) (string, error) {
	return withRetry(ctx, func() (string, error) {
		return l.complete(ctx, messages, image)
	})
}

func (l *OpenAILLM) complete(ctx context.Context, messages []orchestrator.Message, image *orchestrator.ImageRef) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": toOpenAIMessages(messages, image),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}

	return result.Choices[0].Message.Content, nil
}

// toOpenAIMessages attaches image to the last user message as an
// image_url content block, OpenAI's multimodal chat-completions shape.
// A text-only message keeps the plain string content the API also
// accepts, so conversations with no image attached are unaffected.
func toOpenAIMessages(messages []orchestrator.Message, image *orchestrator.ImageRef) []map[string]interface{} {
	out := make([]map[string]interface{}, len(messages))
	lastUser := -1
	for i, m := range messages {
		out[i] = map[string]interface{}{"role": m.Role, "content": m.Content}
		if m.Role == "user" {
			lastUser = i
		}
	}

	if image == nil || lastUser == -1 {
		return out
	}

	data, mimeType := b64Image(image)
	out[lastUser] = map[string]interface{}{
		"role": "user",
		"content": []map[string]interface{}{
			{"type": "text", "text": messages[lastUser].Content},
			{"type": "image_url", "image_url": map[string]string{
				"url": "data:" + mimeType + ";base64," + data,
			}},
		},
	}
	return out
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}
