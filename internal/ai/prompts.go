package ai

import (
	"fmt"

	"github.com/reddit-agent/internal/models"
)

// Reply generation prompts
const (
	ReplySystemPrompt = `You are a long-time Reddit user writing a reply to a post.

Your voice:
%s

Style for this reply: %s

Guidelines:
- Answer the actual question or situation in the post first
- Write like a person, not a brand account
- Keep it under 2000 characters, shorter is better
- No greetings, no sign-offs, no bullet-point essays unless the post calls for one
- Mention the product at most once and only where it genuinely helps
- Never use marketing language or superlatives
- Match the tone of the subreddit`

	ReplyUserPrompt = `Write a reply to this Reddit post.

Subreddit: r/%s
Title: %s
Post:
%s

Product context (use only if relevant):
Name: %s
What it does: %s

Respond with the reply text only. No JSON, no quotes around it, no preamble.`
)

// styleInstructions maps each content style to its voice directive
var styleInstructions = map[models.ContentStyle]string{
	models.StyleHelpfulExpert: "Experienced practitioner sharing what actually works. Specific, confident, generous with detail.",
	models.StyleCasual:        "Relaxed and conversational. Short sentences, everyday words, a little humor where it fits.",
	models.StyleTechnical:     "Precise and technical. Name the tools, versions, and trade-offs. Assume a competent reader.",
	models.StyleStorytelling:  "Lead with a short first-person anecdote about facing the same problem, then land the advice.",
}

// StyleInstruction returns the voice directive for a style
func StyleInstruction(style models.ContentStyle) string {
	if instruction, ok := styleInstructions[style]; ok {
		return instruction
	}
	return styleInstructions[models.StyleHelpfulExpert]
}

// BuildReplyPrompts renders the system and user prompts for a reply
func BuildReplyPrompts(brandVoice string, style models.ContentStyle, subreddit, title, body, productName, productDescription string) (string, string) {
	system := fmt.Sprintf(ReplySystemPrompt, brandVoice, StyleInstruction(style))
	user := fmt.Sprintf(ReplyUserPrompt, subreddit, title, body, productName, productDescription)
	return system, user
}
