package generator

import (
	"fmt"
	"strings"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System string
	User   string
	// Schema asks the backend for a structured JSON reply; nil means free text.
	Schema *ResponseSchema
}

// ResponseSchema names a JSON schema the completion must follow.
type ResponseSchema struct {
	Name       string
	Definition map[string]any
}

const descriptionWordLimit = 150

// verdictSchema is the shape the moderation backend is asked to return.
var verdictSchema = &ResponseSchema{
	Name: "listing_verdict",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"safe":   map[string]any{"type": "boolean"},
			"reason": map[string]any{"type": "string"},
		},
		"required": []string{"safe"},
	},
}

// BuildDescriptionPrompt 生成商品描述提示词。
func BuildDescriptionPrompt(title, category string) Prompt {
	var sb strings.Builder
	sb.WriteString("You write listings for a Ghanaian classifieds marketplace.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Be professional and persuasive; focus on the key benefits of the item.\n")
	sb.WriteString("- Address typical buyer concerns in Ghana: reliability, price, location.\n")
	sb.WriteString(fmt.Sprintf("- Keep it under %d words.\n", descriptionWordLimit))
	sb.WriteString("- Output the description only, no preamble.\n")

	user := fmt.Sprintf("Create a sales description for a %q listed in the %q category.", title, category)

	return Prompt{
		System: sb.String(),
		User:   user,
	}
}

// BuildModerationPrompt 生成安全审核提示词，要求结构化 JSON 输出。
func BuildModerationPrompt(title, description string) Prompt {
	var sb strings.Builder
	sb.WriteString("You review marketplace listings before they are published.\n")
	sb.WriteString("Flag scams, prohibited items (drugs, weapons) and highly suspicious or implausible promises.\n")
	sb.WriteString("Return a JSON object with 'safe' (boolean) and 'reason' (string, required when not safe).\n")

	user := fmt.Sprintf("Title: %s\nDescription: %s", title, description)

	return Prompt{
		System: sb.String(),
		User:   user,
		Schema: verdictSchema,
	}
}
