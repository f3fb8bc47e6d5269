package llm

import (
	"fmt"
	"strings"
)

// StreamStyle 标识 provider 流式输出中工具调用的增量编码方式。
type StreamStyle int

const (
	// StyleIndexedFragment: OpenAI 风格，片段按整数 index 寻址并合并。
	StyleIndexedFragment StreamStyle = iota + 1
	// StyleDeltaObject: Anthropic 风格，块开始携带 id 与 name，随后追加 partial_json。
	StyleDeltaObject
	// StylePreStructured: Gemini 风格，每个分片携带完整的工具调用。
	StylePreStructured
)

var styleNames = map[StreamStyle]string{
	StyleIndexedFragment: "indexed_fragment",
	StyleDeltaObject:     "delta_object",
	StylePreStructured:   "pre_structured",
}

func (s StreamStyle) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StreamStyle(%d)", int(s))
}

// ParseStreamStyle 解析配置中的编码名称。
func ParseStreamStyle(name string) (StreamStyle, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for style, n := range styleNames {
		if n == name {
			return style, nil
		}
	}
	return 0, fmt.Errorf("unknown stream style %q", name)
}

// StyleForProvider 返回内置 provider 名称对应的增量编码。
func StyleForProvider(provider string) (StreamStyle, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai", "azure", "openai-compatible", "ollama":
		return StyleIndexedFragment, nil
	case "anthropic", "claude":
		return StyleDeltaObject, nil
	case "gemini", "google":
		return StylePreStructured, nil
	default:
		return 0, fmt.Errorf("unsupported provider %q", provider)
	}
}
