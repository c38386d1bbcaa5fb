package router

import (
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
)

// ToolInvocation records one tool call made while answering.
type ToolInvocation struct {
	Name      string
	Arguments map[string]any
	Result    string
	Err       string
}

// Turn is one question and its answer.
type Turn struct {
	Question string
	Answer   string
	Tools    []ToolInvocation
	Messages []engine.Message // assistant and tool messages exchanged for this turn
	At       time.Time
}

// ConversationState holds every turn of a session. It lives in memory only.
type ConversationState struct {
	Turns []Turn
}

// clone returns a copy that shares no slices with s.
func (s ConversationState) clone() ConversationState {
	out := ConversationState{Turns: make([]Turn, len(s.Turns))}
	for i, t := range s.Turns {
		t.Tools = append([]ToolInvocation(nil), t.Tools...)
		t.Messages = append([]engine.Message(nil), t.Messages...)
		out.Turns[i] = t
	}
	return out
}
