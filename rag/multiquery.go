package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
)

// QueryExpander 生成额外的检索查询。
type QueryExpander interface {
	Expand(ctx context.Context, query string, n int) ([]string, error)
}

const multiqueryPrompt = "## Task\n\n" +
	"Generate %d questions which are used to query a vector database based on the provided snippet.\n" +
	"Each Question should be relevant to the snippet and help to return documents which are as relevant as possible.\n" +
	"The snippets can be either questions or chunks of text.\n" +
	"You returned questions are always in the language of the user question.\n" +
	"E.g if the user question is in English, the returned questions should also be in English.\n" +
	"If the user question is in German, the returned questions should also be in German.\n" +
	"By generating multiple questions based on the snippet, your goal is to help the user overcome some of the limitations of the distance-based similarity search.\n" +
	"Provide these alternative questions separated by newlines.\n" +
	"## Example\n\n" +
	"### Example Snippet\n\n" +
	"How do the control mechanisms differ for exchange-only qubits, resonant exchange qubits, and always-on exchange-only qubits?\n\n" +
	"### Example Output\n\n" +
	"How are Exchange only qubits controlled?\n" +
	"What are the control mechanisms for resonant exchange qubits?\n" +
	"what are control mechanisms for always-on exchange-only qubits?\n" +
	"Control Mechanisms for Qubits\n" +
	"What is a control mechanism in qubits?\n\n" +
	"## Provided Snippet\n\n" +
	"%s"

// LLMQueryExpander asks a chat model for alternative phrasings of a query.
type LLMQueryExpander struct {
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

// NewLLMQueryExpander creates a query expander. An empty model uses the provider default.
func NewLLMQueryExpander(provider llm.Provider, model string, logger *zap.Logger) *LLMQueryExpander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMQueryExpander{provider: provider, model: model, logger: logger.With(zap.String("component", "multiquery"))}
}

// Expand returns up to the model's answer split into lines, blank lines dropped.
// Fewer than two requested queries yields nothing.
func (e *LLMQueryExpander) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if n < 2 {
		return nil, nil
	}
	resp, err := e.provider.Completion(ctx, &llm.ChatRequest{
		Model:    e.model,
		Messages: []types.Message{types.NewUserMessage(fmt.Sprintf(multiqueryPrompt, n, query))},
	})
	if err != nil {
		return nil, fmt.Errorf("generate multiquery: %w", err)
	}
	var out []string
	for _, line := range strings.Split(resp.FirstContent(), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	e.logger.Debug("multiquery generated", zap.Int("requested", n), zap.Int("generated", len(out)))
	return out, nil
}
