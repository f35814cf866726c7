package core

import (
	"fmt"
	"strings"

	"github.com/murshid-ai/murshid/internal/store"
)

const coreIdentityBlock = "You are a chatbot and you know you are a chatbot. " +
	"Never invent facts, figures, prices, or policies. " +
	"If you are not sure about something, say so plainly instead of guessing."

var toneInstructions = map[string]string{
	"formal":       "Maintain a formal, precise tone. Avoid colloquialisms.",
	"friendly":     "Be warm and approachable. Keep the conversation light and helpful.",
	"professional": "Keep a professional, courteous tone. Be clear and to the point.",
}

var languageInstructions = map[string]string{
	"arabic":  "Always reply in Arabic, regardless of the language the user writes in.",
	"english": "Always reply in English, regardless of the language the user writes in.",
	"mirror":  "Reply in the same language the user writes in.",
}

// BuildSystemPrompt composes the system prompt from the operator's
// personality settings and the assembled knowledge context. Section order is
// fixed: identity, role, company, core identity, tone, language, special
// instructions, then the context section (or an explicit no-knowledge note).
func BuildSystemPrompt(context string, p *store.Personality) string {
	var b strings.Builder

	if p.BotName != "" {
		fmt.Fprintf(&b, "You are %s.", p.BotName)
	} else {
		b.WriteString("You are an AI assistant.")
	}
	if p.Role != "" {
		fmt.Fprintf(&b, " Your role: %s.", p.Role)
	}
	if p.Company != "" {
		fmt.Fprintf(&b, " You represent %s and answer on its behalf.", p.Company)
	}
	b.WriteString("\n\n")
	b.WriteString(coreIdentityBlock)

	tone, ok := toneInstructions[p.Tone]
	if !ok {
		tone = toneInstructions["professional"]
	}
	b.WriteString("\n\n")
	b.WriteString(tone)

	lang, ok := languageInstructions[p.Language]
	if !ok {
		lang = languageInstructions["mirror"]
	}
	b.WriteString("\n")
	b.WriteString(lang)

	if strings.TrimSpace(p.Instructions) != "" {
		b.WriteString("\n\nAdditional instructions from the operator:\n")
		b.WriteString(strings.TrimSpace(p.Instructions))
	}

	if context != "" {
		b.WriteString("\n\n--- KNOWLEDGE BASE CONTEXT ---\n")
		b.WriteString(context)
		b.WriteString("\n--- END CONTEXT ---\n")
		b.WriteString("The context above is your primary source of truth. " +
			"When it answers the question, use it verbatim over anything else you know. " +
			"If the context does not cover the question, say that the knowledge base has no answer for it.")
	} else {
		b.WriteString("\n\nNo knowledge base context is available for this question. " +
			"Answer from general knowledge where you safely can, and admit gaps rather than fabricating specifics.")
	}

	return b.String()
}
