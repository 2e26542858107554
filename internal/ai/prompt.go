package ai

import (
	"fmt"
	"strings"
)

// NoInformationReply is what the model is told to answer when the references
// do not cover the question.
const NoInformationReply = "The provided references don't contain relevant information."

const systemInstructions = `You are an articulate AI assistant that provides:
1. Contextually precise answers using ONLY the provided references
2. Well-structured responses
If context is insufficient, respond: "` + NoInformationReply + `"`

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is everything a generator needs for one answer.
type Prompt struct {
	Context string        `json:"context"`
	History []ChatMessage `json:"history"`
	Query   string        `json:"query"`
}

// Messages lays the prompt out for chat-style APIs: instructions and
// references as the system message, then history, then the question.
func (p Prompt) Messages() []ChatMessage {
	messages := make([]ChatMessage, 0, len(p.History)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: p.system()})
	messages = append(messages, p.History...)
	messages = append(messages, ChatMessage{Role: "user", Content: p.Query})
	return messages
}

// Text flattens the prompt into a single completion prompt.
func (p Prompt) Text() string {
	var b strings.Builder
	b.WriteString(p.system())
	if len(p.History) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, m := range p.History {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s", p.Query)
	return b.String()
}

func (p Prompt) system() string {
	return systemInstructions + "\n\nReferences:\n" + p.Context
}
