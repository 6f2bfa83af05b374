package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"speechbot/core"
)

// DefaultBaseURL is Ollama's OpenAI-compatible endpoint.
const DefaultBaseURL = "http://127.0.0.1:11434/v1"

// OpenAILLMService implements core.ChatModel and core.ModelLister against any
// OpenAI-compatible chat completions API. The model is chosen per call, so a
// single service serves every conversation of a session.
type OpenAILLMService struct {
	client       *openai.Client
	apiKey       string
	baseURL      string
	systemPrompt string
	maxTokens    int
	temperature  float32

	// Service state
	isInitialized bool
	mu            sync.RWMutex
}

// Config holds the configuration for OpenAI service
type Config struct {
	APIKey       string  `json:"api_key"`
	BaseURL      string  `json:"base_url"`      // Empty selects DefaultBaseURL.
	SystemPrompt string  `json:"system_prompt"` // Prepended to every request when set; never stored in history.
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float32 `json:"temperature"`
}

// NewOpenAILLMService creates a new instance of OpenAILLMService
func NewOpenAILLMService(config Config) *OpenAILLMService {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OpenAILLMService{
		apiKey:       config.APIKey,
		baseURL:      baseURL,
		systemPrompt: config.SystemPrompt,
		maxTokens:    config.MaxTokens,
		temperature:  config.Temperature,
	}
}

// Init creates the client and checks that the endpoint answers.
func (s *OpenAILLMService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ollama ignores the key but the client sends one regardless.
	apiKey := s.apiKey
	if apiKey == "" {
		apiKey = "ollama"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = s.baseURL
	s.client = openai.NewClientWithConfig(cfg)

	if _, err := s.client.ListModels(ctx); err != nil {
		s.client = nil
		return fmt.Errorf("llm: connect to %s: %w", s.baseURL, err)
	}

	s.isInitialized = true
	return nil
}

// Cleanup performs cleanup operations
func (s *OpenAILLMService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.isInitialized = false
	return nil
}

func (s *OpenAILLMService) getClient() (*openai.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isInitialized || s.client == nil {
		return nil, fmt.Errorf("llm: service not initialized")
	}
	return s.client, nil
}

// ListModels returns the ids of the locally available models, sorted.
func (s *OpenAILLMService) ListModels(ctx context.Context) ([]string, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}
	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: list models: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Chat sends the whole history to model and returns the first choice as an
// assistant message.
func (s *OpenAILLMService) Chat(ctx context.Context, model string, history []core.Message) (core.Message, error) {
	client, err := s.getClient()
	if err != nil {
		return core.Message{}, err
	}
	if model == "" {
		return core.Message{}, core.ErrEmptyModel
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    s.convertMessages(history),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return core.Message{}, fmt.Errorf("llm: create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.Message{}, core.ErrEmptyReply
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return core.Message{}, core.ErrEmptyReply
	}
	return core.NewAssistantMessage(content), nil
}

// convertMessages converts core messages to OpenAI messages
func (s *OpenAILLMService) convertMessages(messages []core.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if s.systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.systemPrompt,
		})
	}
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    convertRole(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

// convertRole converts core role to OpenAI role
func convertRole(role core.Role) string {
	switch role {
	case core.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
