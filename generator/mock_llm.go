package generator

import (
	"context"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// Structured prompts always get a safe verdict.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	if prompt.Schema != nil {
		return `{"safe": true}`, nil
	}
	var sb strings.Builder
	sb.WriteString("**Ready for a new owner.** ")
	sb.WriteString(prompt.User)
	sb.WriteString("\n\n- Inspect before you pay\n- Meet in a public place\n")
	return sb.String(), nil
}
