package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"voicechat/core"
)

// OpenAILLMService implements chat.ChatService against the OpenAI chat
// completions API or any OpenAI-compatible endpoint.
type OpenAILLMService struct {
	config Config
	logger *core.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client // keyed by credential
}

// Config holds the configuration for OpenAI service
type Config struct {
	APIKey      string  `json:"api_key,omitempty" toml:"api_key"` // Used when a request carries no credential of its own.
	BaseURL     string  `json:"base_url,omitempty" toml:"base_url"`
	Model       string  `json:"model" toml:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty" toml:"max_tokens"`
	Temperature float32 `json:"temperature" toml:"temperature"`
	Streaming   bool    `json:"streaming" toml:"streaming"`
}

// DefaultConfig mirrors the chat defaults of the hosted service.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT3Dot5Turbo,
		Temperature: 0.7,
	}
}

// NewOpenAILLMService creates a new instance of OpenAILLMService
func NewOpenAILLMService(config Config, logger *core.Logger) *OpenAILLMService {
	if logger == nil {
		logger = core.GetLogger()
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	return &OpenAILLMService{
		config:  config,
		logger:  logger.With(map[string]any{"service": "openai_llm", "model": config.Model}),
		clients: make(map[string]*openai.Client),
	}
}

// Init prepares the client for the configured key, if any. It does not call the network.
func (s *OpenAILLMService) Init(ctx context.Context) error {
	if s.config.APIKey != "" {
		s.client(s.config.APIKey)
	}
	return nil
}

// Cleanup performs cleanup operations
func (s *OpenAILLMService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = make(map[string]*openai.Client)
	return nil
}

// Reset is a no-op; requests carry no state between calls.
func (s *OpenAILLMService) Reset() error {
	return nil
}

func (s *OpenAILLMService) client(apiKey string) *openai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[apiKey]; ok {
		return c
	}
	cfg := openai.DefaultConfig(apiKey)
	if s.config.BaseURL != "" {
		cfg.BaseURL = s.config.BaseURL
	}
	c := openai.NewClientWithConfig(cfg)
	// the key set is tiny: the configured key plus whatever the user typed last
	if len(s.clients) > 4 {
		s.clients = make(map[string]*openai.Client)
	}
	s.clients[apiKey] = c
	return c
}

// Complete runs one chat completion and returns the full reply text.
func (s *OpenAILLMService) Complete(ctx context.Context, req core.ChatRequest) (string, error) {
	apiKey := req.Credential
	if apiKey == "" {
		apiKey = s.config.APIKey
	}
	if apiKey == "" {
		return "", fmt.Errorf("openai llm: no API key: %w", core.ErrUnauthorized)
	}

	creq := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    convertTurns(req.Turns()),
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Stream:      s.config.Streaming,
	}

	var (
		reply string
		err   error
	)
	if s.config.Streaming {
		reply, err = s.runStreamingCompletion(ctx, apiKey, creq)
	} else {
		reply, err = s.runNonStreamingCompletion(ctx, apiKey, creq)
	}
	if err != nil {
		return "", classifyError(ctx, err)
	}
	s.logger.With(map[string]any{"request_id": req.RequestID, "chars": len(reply)}).Debug("completion received")
	return reply, nil
}

// runStreamingCompletion accumulates the streamed deltas into the full reply.
func (s *OpenAILLMService) runStreamingCompletion(ctx context.Context, apiKey string, req openai.ChatCompletionRequest) (string, error) {
	stream, err := s.client(apiKey).CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if len(response.Choices) > 0 {
			sb.WriteString(response.Choices[0].Delta.Content)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("empty completion stream")
	}
	return sb.String(), nil
}

// runNonStreamingCompletion handles non-streaming responses
func (s *OpenAILLMService) runNonStreamingCompletion(ctx context.Context, apiKey string, req openai.ChatCompletionRequest) (string, error) {
	resp, err := s.client(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// convertTurns converts core turns to OpenAI messages
func convertTurns(turns []core.ChatTurn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, openai.ChatCompletionMessage{Role: convertRole(t.Role), Content: t.Content})
	}
	return out
}

func convertRole(role core.MessageRole) string {
	switch role {
	case core.MessageRoleSystem:
		return openai.ChatMessageRoleSystem
	case core.MessageRoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// classifyError maps a client error onto the chat failure sentinels.
func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("openai llm: %w", ctxErr)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return fmt.Errorf("openai llm: %w: %v", StatusError(status), err)
}

// StatusError returns the sentinel for an HTTP status from a chat or speech endpoint.
func StatusError(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrUnauthorized
	case http.StatusTooManyRequests:
		return core.ErrRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return core.ErrTimeout
	default:
		return core.ErrServiceError
	}
}
