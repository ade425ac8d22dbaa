package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/appflow/llm"
)

// Tool is the tool-invocation boundary consumed by the agent loop and the
// workflow tool node. Args arrive as a name->value map already validated
// against the tool's schema by the caller's model.
type Tool interface {
	Name() string
	Description() string
	ArgsSchema() json.RawMessage
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Schema converts a tool into the schema form handed to a model.
func Schema(t Tool) llm.ToolSchema {
	return llm.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.ArgsSchema(),
	}
}

// Schemas converts a tool list into model schemas.
func Schemas(ts []Tool) []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(ts))
	for _, t := range ts {
		schemas = append(schemas, Schema(t))
	}
	return schemas
}

// RenderDescriptions 渲染工具名称、描述与参数 Schema 的文本说明，
// 供 ReAct 提示词注入使用。
func RenderDescriptions(ts []Tool) string {
	out := ""
	for _, t := range ts {
		out += fmt.Sprintf("- %s: %s, args: %s\n", t.Name(), t.Description(), string(t.ArgsSchema()))
	}
	return out
}

// Registry holds builtin and API tools keyed by provider id + tool id.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func registryKey(providerID, toolID string) string {
	return providerID + "/" + toolID
}

// Register adds a tool under provider id + tool id.
func (r *Registry) Register(providerID, toolID string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[registryKey(providerID, toolID)] = t
}

// Get looks up a tool, returning false when absent.
func (r *Registry) Get(providerID, toolID string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[registryKey(providerID, toolID)]
	return t, ok
}

// Names returns all registered keys, sorted for stable listing.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for k := range r.tools {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FuncTool adapts a plain function into a Tool. Used for builtins and
// for exposing compiled workflows as tools.
type FuncTool struct {
	name        string
	description string
	argsSchema  json.RawMessage
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFuncTool wraps fn as a Tool.
func NewFuncTool(name, description string, argsSchema json.RawMessage, fn func(ctx context.Context, args map[string]any) (any, error)) *FuncTool {
	return &FuncTool{name: name, description: description, argsSchema: argsSchema, fn: fn}
}

func (t *FuncTool) Name() string                { return t.name }
func (t *FuncTool) Description() string         { return t.description }
func (t *FuncTool) ArgsSchema() json.RawMessage { return t.argsSchema }

func (t *FuncTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}
