package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/basedagent/basedagent/pkg/logger"
	"github.com/basedagent/basedagent/pkg/providers"
)

// ToolRegistry is the set of tools offered to the model during a turn.
// Listings are ordered by name so provider requests are stable.
type ToolRegistry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	r.byName[t.Name()] = t
	r.mu.Unlock()
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *ToolRegistry) namesLocked() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sorted snapshots the registered tools in name order.
func (r *ToolRegistry) sorted() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.byName))
	for _, name := range r.namesLocked() {
		out = append(out, r.byName[name])
	}
	return out
}

// Definitions renders the tools in the shape providers send to the model.
func (r *ToolRegistry) Definitions() []providers.ToolDefinition {
	tools := r.sorted()
	defs := make([]providers.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Summaries returns one markdown bullet per tool for the system prompt.
func (r *ToolRegistry) Summaries() []string {
	tools := r.sorted()
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, fmt.Sprintf("- `%s` - %s", t.Name(), t.Description()))
	}
	return out
}

// Run executes the named tool for the user carried by ctx. Failures come back
// as error results so the model can read them; Run never returns nil.
func (r *ToolRegistry) Run(ctx context.Context, name string, args map[string]interface{}) *ToolResult {
	fields := map[string]interface{}{
		"tool": name,
		"user": UserFromContext(ctx),
		"args": redactArgs(args),
	}

	t, ok := r.Get(name)
	if !ok {
		logger.WarnCF("tool", "Model asked for an unknown tool", fields)
		return ErrorResult(fmt.Sprintf("tool %q not found", name)).WithError(ErrUnknownTool)
	}

	start := time.Now()
	result := t.Execute(ctx, args)
	fields["duration_ms"] = time.Since(start).Milliseconds()

	switch {
	case result == nil:
		err := fmt.Errorf("tool %q returned no result", name)
		logger.ErrorCF("tool", "Tool returned no result", fields)
		return ErrorResult(err.Error()).WithError(err)
	case result.IsError:
		fields["error"] = result.ForLLM
		logger.WarnCF("tool", "Tool failed", fields)
	default:
		fields["result_chars"] = len(result.ForLLM)
		logger.InfoCF("tool", "Tool completed", fields)
	}
	return result
}

// Key fragments whose values never reach the logs. "token" is absent: it
// names an asset symbol in request_funds_on_mainnet.
var secretArgFragments = []string{
	"api_key",
	"apikey",
	"authorization",
	"mnemonic",
	"passphrase",
	"password",
	"private",
	"secret",
	"seed",
}

const maxLoggedArgChars = 256

func redactArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = redactValue(k, v, 0)
	}
	return out
}

func redactValue(key string, v interface{}, depth int) interface{} {
	if isSecretKey(key) {
		return "<redacted>"
	}
	if depth > 4 {
		return "<omitted>"
	}
	switch typed := v.(type) {
	case string:
		if len(typed) > maxLoggedArgChars {
			return typed[:maxLoggedArgChars] + "...(truncated)"
		}
		return typed
	case map[string]interface{}:
		nested := make(map[string]interface{}, len(typed))
		for k, inner := range typed {
			nested[k] = redactValue(k, inner, depth+1)
		}
		return nested
	case []interface{}:
		items := make([]interface{}, len(typed))
		for i, inner := range typed {
			items[i] = redactValue(key, inner, depth+1)
		}
		return items
	default:
		return v
	}
}

func isSecretKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	for _, frag := range secretArgFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}
