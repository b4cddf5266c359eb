package llm

import (
	"context"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// MockChatClient is a scripted ChatClient for tests. Responses and
// errors are consumed in order; once the script runs out the last
// entry repeats.
type MockChatClient struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	errors    []error
	calls     []openai.ChatCompletionRequest
	index     int
}

// NewMockChatClient builds a mock that replies with the given texts in
// order.
func NewMockChatClient(texts ...string) *MockChatClient {
	m := &MockChatClient{}
	for _, t := range texts {
		m.responses = append(m.responses, TextResponse(t))
		m.errors = append(m.errors, nil)
	}
	return m
}

// TextResponse wraps plain text in a single-choice completion response.
func TextResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			}},
		},
	}
}

// Enqueue appends a scripted response.
func (m *MockChatClient) Enqueue(resp openai.ChatCompletionResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errors = append(m.errors, err)
}

// EnqueueError appends a scripted failure.
func (m *MockChatClient) EnqueueError(err error) {
	m.Enqueue(openai.ChatCompletionResponse{}, err)
}

// CreateChatCompletion implements ChatClient.
func (m *MockChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if len(m.responses) == 0 {
		return TextResponse(""), nil
	}
	i := m.index
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.index++
	return m.responses[i], m.errors[i]
}

// CallCount returns how many completions were requested.
func (m *MockChatClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded requests.
func (m *MockChatClient) Calls() []openai.ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]openai.ChatCompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCall returns the most recent request, or false if none were made.
func (m *MockChatClient) LastCall() (openai.ChatCompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return openai.ChatCompletionRequest{}, false
	}
	return m.calls[len(m.calls)-1], true
}
