package conversation

import "github.com/BaSui01/landau/types"

const (
	ToolQueryVectorDB   = "query_vector_db"
	ToolTableOfContents = "retrieve_table_of_contents"
	ToolSection         = "retrieve_section"
	ToolFormula         = "retrieve_formula"
	ToolQuestionSetup   = "question_setup"
)

// DefaultMaxParallelToolCalls 单批工具调用上限。
const DefaultMaxParallelToolCalls = 3

// ApplyToolConstraints filters a batch before dispatch: a table-of-contents call
// suppresses everything else, otherwise only the first section retrieval survives,
// and the batch is capped at maxParallel (values below 1 use the default).
func ApplyToolConstraints(calls []types.ToolCall, maxParallel int) []types.ToolCall {
	if maxParallel < 1 {
		maxParallel = DefaultMaxParallelToolCalls
	}
	if toc := filterByName(calls, ToolTableOfContents); len(toc) > 0 {
		calls = toc
	} else if sections := filterByName(calls, ToolSection); len(sections) > 0 {
		calls = sections[:1]
	}
	if len(calls) > maxParallel {
		calls = calls[:maxParallel]
	}
	return calls
}

func filterByName(calls []types.ToolCall, name string) []types.ToolCall {
	var out []types.ToolCall
	for _, c := range calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
