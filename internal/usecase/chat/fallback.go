package chat

import (
	"fmt"
	"strings"
)

// fallbackRule maps question keywords to a canned reply. Rules are checked
// in order; the first rule with any keyword present in the lowercased
// question wins. Keywords must be lowercase.
type fallbackRule struct {
	keywords []string
	response string
}

var fallbackRules = []fallbackRule{
	{
		keywords: []string{"架构", "设计", "系统"},
		response: `关于系统架构设计，我建议考虑以下几个关键方面：

🏗️ **架构设计原则：**
1. **模块化设计** - 将系统分解为独立的模块
2. **可扩展性** - 支持未来功能扩展
3. **高可用性** - 确保系统稳定运行
4. **性能优化** - 关注响应时间和吞吐量

💡 **技术选型建议：**
- 选择成熟稳定的技术栈
- 考虑团队技术栈熟悉度
- 评估技术的长期维护性
- 权衡开发效率和性能需求

您希望深入讨论哪个具体的架构方面？`,
	},
	{
		keywords: []string{"数据", "数据库", "存储"},
		response: `关于数据管理和存储，这里有一些专业建议：

📊 **数据存储策略：**
1. **关系型数据库** - 适合结构化数据和事务处理
2. **非关系型数据库** - 适合大规模数据和灵活schema
3. **缓存系统** - 提升数据访问性能
4. **数据备份** - 确保数据安全性

🔍 **数据处理最佳实践：**
- 数据清洗和验证
- 建立数据质量监控
- 实施数据安全策略
- 优化查询性能

需要针对特定的数据场景进行深入分析吗？`,
	},
	{
		keywords: []string{"ai", "机器学习", "算法", "模型"},
		response: `关于AI和机器学习实施，我为您提供以下指导：

🤖 **AI项目开发流程：**
1. **需求分析** - 明确AI应用场景
2. **数据准备** - 收集和预处理训练数据
3. **模型选择** - 根据问题类型选择算法
4. **模型训练** - 使用合适的训练策略
5. **模型评估** - 多维度评估模型性能
6. **部署上线** - 将模型集成到生产环境

⚡ **关键技术要点：**
- 特征工程的重要性
- 过拟合和欠拟合的处理
- 模型解释性和可信度
- 持续学习和模型更新

您想了解哪个具体的AI技术细节？`,
	},
}

const emptyQuestionFallback = "您好！我是您的AI助手，请问有什么可以帮您的？"

// FallbackResponse synthesizes a canned reply when the language model is
// unavailable. The question is keyword-matched against fallbackRules; with
// no match a generic template echoes the question and, when present, the
// project context.
func FallbackResponse(question, projectContext string) string {
	if strings.TrimSpace(question) == "" {
		return emptyQuestionFallback
	}

	lower := strings.ToLower(question)
	for _, rule := range fallbackRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.response
			}
		}
	}

	contextInfo := ""
	if projectContext != "" {
		contextInfo = fmt.Sprintf("在%s的背景下，", projectContext)
	}
	return fmt.Sprintf(`感谢您的提问！%s我为您提供以下分析：

💡 **问题理解：**
您询问的"%s"是一个很好的问题。

🎯 **建议方向：**
1. **深入分析** - 从多个角度理解问题本质
2. **最佳实践** - 参考行业标准和成功案例
3. **风险评估** - 识别潜在的技术和业务风险
4. **实施策略** - 制定循序渐进的解决方案

🚀 **下一步行动：**
- 收集更多详细需求
- 评估技术可行性
- 制定详细实施计划
- 建立项目里程碑

如果您能提供更多具体的技术需求或约束条件，我可以给出更有针对性的建议。您希望从哪个方面开始深入讨论？`, contextInfo, question)
}
