package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completionStub struct {
	answer string
	err    error
	req    *llm.ChatRequest
}

func (c *completionStub) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.req = req
	if c.err != nil {
		return nil, c.err
	}
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage(c.answer)}}}, nil
}

func (c *completionStub) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not supported")
}

func (c *completionStub) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (c *completionStub) Name() string                  { return "stub" }
func (c *completionStub) StreamStyle() llm.StreamStyle { return llm.StyleIndexedFragment }

func TestLLMQueryExpander(t *testing.T) {
	stub := &completionStub{answer: "Was ist ein Qubit?\n\nWie misst man Qubits?\n"}
	e := NewLLMQueryExpander(stub, "gpt-4o", nil)

	out, err := e.Expand(context.Background(), "Qubits", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Was ist ein Qubit?", "Wie misst man Qubits?"}, out)

	require.NotNil(t, stub.req)
	assert.Equal(t, "gpt-4o", stub.req.Model)
	prompt := stub.req.Messages[0].Content
	assert.True(t, strings.HasPrefix(prompt, "## Task\n\nGenerate 3 questions"))
	assert.True(t, strings.HasSuffix(prompt, "## Provided Snippet\n\nQubits"))
}

func TestLLMQueryExpander_TooFewSkipsModel(t *testing.T) {
	stub := &completionStub{}
	out, err := NewLLMQueryExpander(stub, "", nil).Expand(context.Background(), "Qubits", 1)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Nil(t, stub.req)
}

func TestLLMQueryExpander_Error(t *testing.T) {
	_, err := NewLLMQueryExpander(&completionStub{err: errors.New("boom")}, "", nil).Expand(context.Background(), "Qubits", 2)
	assert.Error(t, err)
}
