package tools

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/landau/types"
	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaFor 根据参数结构体 T 生成工具 Schema。
// 字段描述来自 `jsonschema:"..."` 标签，没有 omitempty 的字段为必填。
func SchemaFor[T any](name, description string) (types.ToolSchema, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return types.ToolSchema{}, fmt.Errorf("schema for %s: %w", name, err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return types.ToolSchema{}, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	return types.ToolSchema{Name: name, Description: description, Parameters: raw}, nil
}

// MustSchemaFor 与 SchemaFor 相同，失败时 panic，用于包级工具定义。
func MustSchemaFor[T any](name, description string) types.ToolSchema {
	s, err := SchemaFor[T](name, description)
	if err != nil {
		panic(err)
	}
	return s
}
