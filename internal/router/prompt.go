package router

import (
	"fmt"
	"strings"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
)

const systemInstructions = `You are a warm, conversational assistant with access to the user's personal memory, built from their daily voice journal. You answer questions about their life.

Guidelines:
- Greetings get a brief, friendly reply.
- Use the tools when the answer needs more than what is below, then answer naturally.
- Follow-up questions may refer to earlier turns of this conversation.
- Only answer from what is in memory. If a search finds nothing relevant, say the information is not in their memory instead of guessing.`

// buildMessages assembles the prompt for one turn: the system message with
// the primary context, every earlier turn with its tool calls and results,
// and the new question.
func buildMessages(primary string, tools []engine.ToolDef, history []Turn, question string) []engine.Message {
	var sb strings.Builder
	sb.WriteString(systemInstructions)

	sb.WriteString("\n\n[About the user]\n")
	if strings.TrimSpace(primary) == "" {
		sb.WriteString("Nothing recorded yet.")
	} else {
		sb.WriteString(primary)
	}

	if len(tools) > 0 {
		sb.WriteString("\n\n[Tools]")
		for _, t := range tools {
			fmt.Fprintf(&sb, "\n- %s: %s", t.Name, t.Description)
		}
	}

	msgs := []engine.Message{{Role: "system", Content: sb.String()}}
	for _, t := range history {
		msgs = append(msgs, engine.Message{Role: "user", Content: t.Question})
		if len(t.Messages) == 0 {
			msgs = append(msgs, engine.Message{Role: "assistant", Content: t.Answer})
			continue
		}
		msgs = append(msgs, t.Messages...)
	}
	return append(msgs, engine.Message{Role: "user", Content: question})
}
