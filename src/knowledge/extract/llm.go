package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	ollama "github.com/ollama/ollama/api"
	openai "github.com/sashabaranov/go-openai"
)

// LLM is the text-understanding backend behind both extractors. It is a
// pluggable capability, not a specific product: anything that completes a
// prompt into text will do.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AutoLLM chooses a provider from env:
// MEMORY_EXTRACT_PROVIDER=openai|anthropic|ollama
// MEMORY_EXTRACT_MODEL=<model string>
// Returns nil when no provider is configured; extractors treat a nil backend
// as "nothing extracted".
func AutoLLM() LLM {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("MEMORY_EXTRACT_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("MEMORY_EXTRACT_MODEL"))

	switch provider {
	case "openai":
		return NewOpenAILLM(model)
	case "anthropic", "claude":
		return NewAnthropicLLM(model)
	case "ollama":
		if l, err := NewOllamaLLM(model); err == nil {
			return l
		}
	case "":
		if os.Getenv("OPENAI_API_KEY") != "" {
			return NewOpenAILLM(model)
		}
		if os.Getenv("ANTHROPIC_API_KEY") != "" {
			return NewAnthropicLLM(model)
		}
	}
	return nil
}

// ---------- OpenAI ----------

type OpenAILLM struct {
	client *openai.Client
	model  string
}

func NewOpenAILLM(model string) *OpenAILLM {
	key := os.Getenv("OPENAI_API_KEY")
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAILLM{client: openai.NewClient(key), model: model}
}

func (l *OpenAILLM) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// ---------- Anthropic ----------

type AnthropicLLM struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicLLM(model string) *AnthropicLLM {
	key := os.Getenv("ANTHROPIC_API_KEY")
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(key))
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicLLM{client: &cl, model: model, maxTokens: 1024}
}

func (l *AnthropicLLM) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := l.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(l.model),
		MaxTokens: l.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String(), nil
}

// ---------- Ollama ----------

type OllamaLLM struct {
	client *ollama.Client
	model  string
}

func NewOllamaLLM(model string) (*OllamaLLM, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse OLLAMA_HOST: %w", err)
	}
	httpClient := &http.Client{Timeout: 120 * time.Second}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaLLM{client: ollama.NewClient(u, httpClient), model: model}, nil
}

func (l *OllamaLLM) Complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	var b strings.Builder
	err := l.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  l.model,
		Prompt: prompt,
		Stream: &stream,
	}, func(res ollama.GenerateResponse) error {
		b.WriteString(res.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
