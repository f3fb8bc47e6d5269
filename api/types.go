package api

import (
	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/types"
)

// =============================================================================
// 📚 Script backend
// =============================================================================

// QueryRequest 检索请求，未给出的字段使用 DefaultQueryRequest 的值。
type QueryRequest = rag.RetrievalRequest

// DefaultQueryRequest 返回检索接口的默认参数。
func DefaultQueryRequest() QueryRequest {
	return QueryRequest{
		CollectionName: rag.DefaultCollection,
		TopK:           10,
		TopN:           5,
	}
}

// QueryResponse 检索结果
type QueryResponse struct {
	Queries   []string            `json:"queries"`
	Documents []rag.ScoredPassage `json:"documents"`
}

// TOCRequest 目录请求
type TOCRequest struct {
	DocumentID     string `json:"document_id" validate:"notblank"`
	CollectionName string `json:"collection_name" validate:"notblank"`
}

// TOCResponse 目录
type TOCResponse struct {
	CollectionName string   `json:"collection_name"`
	DocumentID     string   `json:"document_id"`
	TOC            []string `json:"toc"`
}

// SectionRequest 小节请求
type SectionRequest struct {
	DocumentID     string `json:"document_id" validate:"notblank"`
	ChapterID      string `json:"chapter_id" validate:"notblank"`
	SectionID      string `json:"section_id" validate:"notblank"`
	CollectionName string `json:"collection_name" validate:"notblank"`
}

// FormulaRequest 公式请求
type FormulaRequest struct {
	DocumentID     string `json:"document_id" validate:"notblank"`
	FormulaID      string `json:"formula_id" validate:"notblank"`
	CollectionName string `json:"collection_name" validate:"notblank"`
}

// =============================================================================
// 💬 Chat WebSocket frames
// =============================================================================

// Client frame types.
const (
	TypeMessage   = "message"
	TypeSettings  = "settings"
	TypeExamSetup = "exam_setup"
)

// Server frame types.
const (
	TypeStart  = "start"
	TypeUpdate = "update"
	TypeFinal  = "final"
	TypeTool   = "tool"
	TypeError  = "error"
)

// Tool status values of a "tool" frame.
const (
	ToolStarted  = "started"
	ToolFinished = "finished"
)

// ClientMessage 客户端发来的帧
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`

	// settings：nil 字段保持不变，空的 permitted_document_ids 解除限制
	PermittedDocumentIDs []string `json:"permitted_document_ids,omitempty"`
	Language             string   `json:"language,omitempty"`
	Profile              string   `json:"profile,omitempty"`
	CopilotContext       *string  `json:"copilot_context,omitempty"`
}

// ServerMessage 服务端发出的帧
type ServerMessage struct {
	Type     string          `json:"type"`
	Content  string          `json:"content,omitempty"`
	Elements []types.Element `json:"elements,omitempty"`
	Name     string          `json:"name,omitempty"`
	Status   string          `json:"status,omitempty"`
	Message  string          `json:"message,omitempty"`
}
