package tools

import "errors"

// ErrUnknownTool marks a call to a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ToolResult is what a tool hands back to the loop. ForLLM is fed to the
// model; ForUser, when set, is a user-facing rendition.
type ToolResult struct {
	ForLLM  string
	ForUser string
	IsError bool
	Err     error
}

func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// UserResult is shown verbatim to both the model and the user.
func UserResult(content string) *ToolResult {
	return &ToolResult{ForLLM: content, ForUser: content}
}

func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: message, IsError: true}
}

func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}

// modelText is what the model sees for this result.
func (r *ToolResult) modelText() string {
	if r.ForLLM == "" && r.Err != nil {
		return r.Err.Error()
	}
	return r.ForLLM
}
