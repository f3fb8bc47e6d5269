package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
)

// ToolFunc defines the tool function signature. The returned text is handed to the model.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema  types.ToolSchema // Tool JSON Schema
	Timeout time.Duration    // Execution timeout (default 30s)
}

// ToolRegistry defines tool registry interface.
type ToolRegistry interface {
	Register(fn ToolFunc, metadata ToolMetadata) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// DefaultRegistry keeps tools in registration order so schemas are offered to the model stably.
type DefaultRegistry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	order    []string
	logger   *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		logger:   logger.With(zap.String("component", "tools")),
	}
}

func (r *DefaultRegistry) Register(fn ToolFunc, metadata ToolMetadata) error {
	name := metadata.Schema.Name
	if name == "" {
		return fmt.Errorf("tool schema has no name")
	}
	if fn == nil {
		return fmt.Errorf("tool %s has no function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	if metadata.Timeout == 0 {
		metadata.Timeout = 30 * time.Second
	}

	r.tools[name] = fn
	r.metadata[name] = metadata
	r.order = append(r.order, name)

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}
	return fn, r.metadata[name], nil
}

func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.metadata[name].Schema)
	}
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}
