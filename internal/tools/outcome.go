package tools

import "strings"

// ErrorKind classifies dispatch failures.
type ErrorKind int

const (
	UnknownTool ErrorKind = iota + 1
	InvalidArguments
	ToolExecutionFailed
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownTool:
		return "unknown_tool"
	case InvalidArguments:
		return "invalid_arguments"
	case ToolExecutionFailed:
		return "tool_execution_failed"
	}
	return "unknown"
}

// FieldError is one schema violation. Path is dotted, with array indices
// in brackets: "items[2].status".
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Failure is the error side of an Outcome.
type Failure struct {
	Kind    ErrorKind
	Message string
	Details []FieldError
}

// Outcome is the result of a dispatch: either Value or Err.
type Outcome struct {
	Value ToolResult
	Err   *Failure
}

// OK reports whether the tool ran.
func (o Outcome) OK() bool { return o.Err == nil }

// Text renders the outcome for the model, and whether it is an error.
func (o Outcome) Text() (string, bool) {
	if o.Err != nil {
		return o.Err.Message, true
	}
	return o.Value.Content, o.Value.IsError
}

func fail(kind ErrorKind, msg string) Outcome {
	return Outcome{Err: &Failure{Kind: kind, Message: msg}}
}

func joinFieldErrors(errs []FieldError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
