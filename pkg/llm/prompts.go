package llm

// 各意图的系统提示词。适配器在分发请求前根据 PromptKind 选取，
// 这是提示词与意图的唯一映射点。
const (
	chatPrompt = "你是一位温暖、专业的饮食生活助手。用简洁自然的语气回答用户的日常问题，" +
		"涉及饮食话题时给出实用建议，不要编造事实。"

	recipePrompt = "你是一位经验丰富的营养师和家常菜厨师。根据用户的需求和饮食标签推荐合适的食谱，" +
		"每个食谱给出名称、主要食材、简要做法和营养特点。若用户的饮食标签之间存在限制，" +
		"推荐时必须同时满足所有限制。"

	healthAdvicePrompt = "你是一位谨慎的健康饮食顾问。针对用户的饮食健康问题给出科学、温和的建议，" +
		"避免绝对化表述。回答末尾提醒用户：以上建议不构成医疗诊断，如有疾病请咨询医生。"

	classifyPrompt = "你是一个意图分类器。判断用户最后一条消息的意图，只输出以下三个词之一，" +
		"不要输出任何其他内容：chat、recipe、health_advice。" +
		"询问食谱、菜谱、做法、吃什么时输出 recipe；" +
		"询问饮食健康、营养、疾病饮食禁忌时输出 health_advice；其余输出 chat。"
)

// systemPrompt 返回指定 kind 的系统提示词。
func systemPrompt(kind PromptKind) string {
	switch kind {
	case KindRecipe:
		return recipePrompt
	case KindHealthAdvice:
		return healthAdvicePrompt
	case KindClassify:
		return classifyPrompt
	default:
		return chatPrompt
	}
}

// withSystemPrompt 在消息序列前插入 kind 对应的系统提示词。
// 供消息体中允许 system 角色的服务商使用。
func withSystemPrompt(kind PromptKind, messages []Message) []Message {
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: "system", Content: systemPrompt(kind)})
	out = append(out, messages...)
	return out
}
