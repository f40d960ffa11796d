package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackResponse_KeywordCategories(t *testing.T) {
	cases := []struct {
		name     string
		question string
		want     string
	}{
		{"architecture", "请评审一下我们的系统架构", "架构设计原则"},
		{"storage", "用户数据应该怎么存储？", "数据存储策略"},
		{"ai lowercase match", "如何落地一个AI模型？", "AI项目开发流程"},
		{"machine learning", "机器学习该从哪里入手", "AI项目开发流程"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, FallbackResponse(tc.question, ""), tc.want)
		})
	}
}

func TestFallbackResponse_GenericEchoesQuestion(t *testing.T) {
	resp := FallbackResponse("周报应该怎么写", "")
	assert.Contains(t, resp, "周报应该怎么写")
	assert.NotContains(t, resp, "背景下", "no project context, no context clause")
}

func TestFallbackResponse_GenericIncludesProjectContext(t *testing.T) {
	resp := FallbackResponse("进度怎么安排", "电商平台重构项目")
	assert.Contains(t, resp, "在电商平台重构项目的背景下")
}

func TestFallbackResponse_EmptyQuestion(t *testing.T) {
	assert.Equal(t, emptyQuestionFallback, FallbackResponse("  ", "ctx"))
}
