package chat

import (
	"fmt"
	"strings"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

const systemPreamble = "你是一个专业的AI助手，专门帮助用户解决技术问题。请提供准确、有用的回答。"

// BuildSystemPrompt assembles the system turn: fixed preamble, optional
// project context, then the retrieved excerpts as a numbered list with file
// name and relevance score. When no documents were retrieved the documents
// section is omitted entirely, header included; an empty header reads as
// false confidence to the model.
func BuildSystemPrompt(projectContext string, docs []domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString(systemPreamble)

	if projectContext != "" {
		fmt.Fprintf(&b, "\n\n当前项目上下文：%s\n请基于项目背景提供相关建议。", projectContext)
	}

	if len(docs) > 0 {
		b.WriteString("\n\n相关文档内容：")
		for i, d := range docs {
			fmt.Fprintf(&b, "\n%d. 【%s】（相关度 %.2f）\n%s", i+1, d.DocumentName, d.Score, d.Excerpt)
		}
		b.WriteString("\n\n请优先参考以上文档内容回答问题。")
	}

	return b.String()
}

// withSystemTurn prepends the system prompt to the conversation history.
func withSystemTurn(prompt string, history []domain.ConversationTurn) []domain.ConversationTurn {
	turns := make([]domain.ConversationTurn, 0, len(history)+1)
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleSystem, Content: prompt})
	return append(turns, history...)
}

// lastUserMessage returns the content of the most recent user turn, or ""
// when the history has none.
func lastUserMessage(history []domain.ConversationTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
