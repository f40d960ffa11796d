package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

func TestBuildSystemPrompt_Bare(t *testing.T) {
	prompt := BuildSystemPrompt("", nil)

	assert.Equal(t, systemPreamble, prompt)
	assert.NotContains(t, prompt, "相关文档内容", "empty retrieval must omit the documents section entirely")
}

func TestBuildSystemPrompt_ProjectContext(t *testing.T) {
	prompt := BuildSystemPrompt("内部知识库项目", nil)

	assert.Contains(t, prompt, "当前项目上下文：内部知识库项目")
	assert.NotContains(t, prompt, "相关文档内容")
}

func TestBuildSystemPrompt_NumberedExcerpts(t *testing.T) {
	prompt := BuildSystemPrompt("", []domain.RetrievalResult{
		{DocumentName: "design.md", Excerpt: "first excerpt", Score: 0.91},
		{DocumentName: "notes.md", Excerpt: "second excerpt", Score: 0.42},
	})

	assert.Contains(t, prompt, "1. 【design.md】（相关度 0.91）\nfirst excerpt")
	assert.Contains(t, prompt, "2. 【notes.md】（相关度 0.42）\nsecond excerpt")
}

func TestLastUserMessage(t *testing.T) {
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleAssistant, Content: "reply"},
		{Role: domain.RoleUser, Content: "second"},
	}
	assert.Equal(t, "second", lastUserMessage(history))
	assert.Empty(t, lastUserMessage(nil))
	assert.Empty(t, lastUserMessage(history[1:2]))
}
