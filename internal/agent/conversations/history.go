package conversations

import (
	"github.com/cloudwego/eino/schema"

	"github.com/clara-care/server/internal/agent/model"
)

// BuildHistory converts the caller-submitted messages into model input.
// Empty messages are dropped and at most maxMessages of the most recent are
// kept; maxMessages <= 0 keeps all of them.
func BuildHistory(messages []model.ChatMessage, maxMessages int) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		case model.RoleTool:
			// A replayed tool result has no matching call id in this request; pass it as context.
			out = append(out, schema.UserMessage("Tool result: "+m.Content))
		}
	}
	return trimTail(out, maxMessages)
}

// Transcript is the persisted form of one exchange: the submitted messages, the
// text the model sent alongside its tool call (if any), an optional
// tool-execution marker and the final assistant reply.
func Transcript(messages []model.ChatMessage, firstReply, toolName, reply string) []model.TranscriptMessage {
	out := make([]model.TranscriptMessage, 0, len(messages)+3)
	for _, m := range messages {
		out = append(out, model.TranscriptMessage{Role: m.Role, Content: m.Content})
	}
	if toolName != "" && firstReply != "" {
		out = append(out, model.TranscriptMessage{Role: model.RoleAssistant, Content: firstReply})
	}
	if toolName != "" {
		out = append(out, model.TranscriptMessage{Role: model.RoleTool, Content: "executed " + toolName, Tool: toolName})
	}
	out = append(out, model.TranscriptMessage{Role: model.RoleAssistant, Content: reply})
	return out
}

func trimTail(messages []*schema.Message, maxMessages int) []*schema.Message {
	if maxMessages <= 0 || len(messages) <= maxMessages {
		return messages
	}
	source := messages[len(messages)-maxMessages:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
