package agent

import (
	"strings"

	"github.com/kmoai/kmoai/llm"
)

// ParseError reports completion output that is neither an action nor a
// final answer. Output keeps the raw text for recovery.
type ParseError struct {
	Output string
}

func (e *ParseError) Error() string {
	return "could not parse agent output: " + e.Output
}

var parseScaffold = strings.NewReplacer("Action: None", "", "Action:", "", llm.EndOfTurn, "")

// Recover returns the raw output with the action scaffolding removed, for
// use as a direct answer.
func (e *ParseError) Recover() string {
	return strings.TrimSpace(parseScaffold.Replace(e.Output))
}
