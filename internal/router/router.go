// Package router answers questions about the user's memory. The primary
// context is always in the prompt; the model pulls in the short-term memory
// or searches older memories through tools when it needs them.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
)

const defaultMaxRounds = 4

// Options tune a Router. Zero values select defaults.
type Options struct {
	// MaxRounds bounds the tool rounds per question. After the last round
	// the model is asked once more without tools.
	MaxRounds int
	Logger    *slog.Logger
}

// Router creates sessions that share an engine, memory and tools.
type Router struct {
	engine    engine.Engine
	model     string
	memory    MemoryReader
	tools     *Toolset
	maxRounds int
	logger    *slog.Logger
}

// New creates a Router.
func New(e engine.Engine, model string, memory MemoryReader, tools *Toolset, opts Options) *Router {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if tools == nil {
		tools = NewToolset()
	}
	return &Router{
		engine:    e,
		model:     model,
		memory:    memory,
		tools:     tools,
		maxRounds: opts.MaxRounds,
		logger:    opts.Logger,
	}
}

// Answer is the reply to one question.
type Answer struct {
	Text      string
	ToolsUsed []string
	Rounds    int
}

// Session is one conversation. Questions within a session are answered one
// at a time.
type Session struct {
	ID     string
	router *Router

	mu    sync.Mutex
	state ConversationState
}

// NewSession starts an empty conversation.
func (r *Router) NewSession() *Session {
	return &Session{ID: uuid.New().String(), router: r}
}

// State returns a snapshot of the conversation so far.
func (s *Session) State() ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Ask answers question in the context of the session's earlier turns.
func (s *Session) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, errors.New("empty question")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.router
	log := r.logger.With("session", s.ID)

	pc, err := r.memory.PrimaryContext(ctx)
	if err != nil {
		return Answer{}, fmt.Errorf("loading primary context: %w", err)
	}
	defs := r.tools.Definitions()
	msgs := buildMessages(pc.Text, defs, s.state.Turns, question)
	base := len(msgs)

	turn := Turn{Question: question, At: time.Now()}
	var ans Answer
	final := ""
	answered := false

	for round := 0; round < r.maxRounds; round++ {
		reply, err := r.engine.ChatTools(ctx, r.model, msgs, defs)
		if err != nil {
			return Answer{}, fmt.Errorf("asking model: %w", err)
		}
		ans.Rounds++
		if len(reply.ToolCalls) == 0 {
			final, answered = reply.Content, true
			break
		}

		msgs = append(msgs, engine.Message{Role: "assistant", Content: reply.Content, ToolCalls: reply.ToolCalls})
		for _, call := range reply.ToolCalls {
			inv := ToolInvocation{Name: call.Name, Arguments: call.Arguments}
			result, err := r.tools.Call(ctx, call)
			if err != nil {
				log.Warn("tool call failed", "tool", call.Name, "error", err)
				inv.Err = err.Error()
				result = "Error: " + err.Error()
			}
			inv.Result = result
			turn.Tools = append(turn.Tools, inv)
			ans.ToolsUsed = appendUnique(ans.ToolsUsed, call.Name)
			msgs = append(msgs, engine.Message{Role: "tool", Content: result, ToolCallID: call.ID, Name: call.Name})
			log.Debug("tool called", "tool", call.Name, "result_chars", len(result))
		}
	}

	if !answered {
		log.Info("tool round limit reached, forcing an answer", "rounds", r.maxRounds)
		reply, err := r.engine.ChatTools(ctx, r.model, msgs, nil)
		if err != nil {
			return Answer{}, fmt.Errorf("asking model: %w", err)
		}
		ans.Rounds++
		final = reply.Content
	}

	final = strings.TrimSpace(final)
	if final == "" {
		return Answer{}, errors.New("model returned an empty answer")
	}
	ans.Text = final

	turn.Answer = final
	turn.Messages = append([]engine.Message(nil), msgs[base:]...)
	turn.Messages = append(turn.Messages, engine.Message{Role: "assistant", Content: final})
	s.state.Turns = append(s.state.Turns, turn)
	return ans, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
