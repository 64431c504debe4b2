package pipeline

import (
	"sort"
	"strings"
	"unicode"
)

// Normalizer 查询归一化阶段
// 纯规则实现，不做任何网络调用，永远不失败
type Normalizer struct {
	aliases      []aliasEntry
	historyTurns int
}

type aliasEntry struct {
	surface   string
	canonical string
}

// NewNormalizer 创建归一化器
// 别名按长度降序排列，保证扫描时最长匹配优先
func NewNormalizer(aliases map[string]string, historyTurns int) *Normalizer {
	entries := make([]aliasEntry, 0, len(aliases))
	for surface, canonical := range aliases {
		entries = append(entries, aliasEntry{
			surface:   strings.ToLower(surface),
			canonical: canonical,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].surface) != len(entries[j].surface) {
			return len(entries[i].surface) > len(entries[j].surface)
		}
		return entries[i].surface < entries[j].surface
	})

	if historyTurns <= 0 {
		historyTurns = 5
	}

	return &Normalizer{aliases: entries, historyTurns: historyTurns}
}

// Normalize 填充归一化字段：小写裁剪、型号别名、意图、语言、历史偏置
func (n *Normalizer) Normalize(state *AgentState, history []ConversationTurn) {
	normalized := strings.ToLower(strings.TrimSpace(state.RawQuery))
	state.NormalizedQuery = normalized
	state.Language = detectLanguage(state.RawQuery)
	state.DetectedIntent = classifyIntent(normalized)
	state.DetectedEquipmentModel = n.detectModel(normalized)

	// 当前查询没提到型号时，回看最近几轮对话补齐，保持检索连续性
	if len(history) > n.historyTurns {
		history = history[len(history)-n.historyTurns:]
	}
	if state.DetectedEquipmentModel == "" {
		for i := len(history) - 1; i >= 0; i-- {
			if model := n.detectModel(strings.ToLower(history[i].Content)); model != "" {
				state.DetectedEquipmentModel = model
				break
			}
		}
	}
	state.PriorTurnSummary = summarizeLastTurn(history)
}

// detectModel 在查询里扫描设备型号别名
// 位置靠前的匹配优先，同位置时别名表已按长度降序排好
func (n *Normalizer) detectModel(query string) string {
	bestIndex := -1
	bestCanonical := ""
	for _, entry := range n.aliases {
		index := strings.Index(query, entry.surface)
		if index < 0 {
			continue
		}
		if bestIndex == -1 || index < bestIndex {
			bestIndex = index
			bestCanonical = entry.canonical
		}
	}
	return bestCanonical
}

var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{IntentTroubleshooting, []string{"troubleshoot", "fault", "failure", "alarm", "error", "not working", "problem", "fix", "diagnos", "low ", "high ", "leak", "vibration", "trip"}},
	{IntentStatus, []string{"status", "current reading", "right now", "currently", "live", "telemetry", "latest reading", "real-time"}},
	{IntentProcedure, []string{"how do i", "how to", "procedure", "steps", "replace", "install", "remove", "perform", "start up", "shut down", "calibrate", "inspect"}},
	{IntentSpecification, []string{"spec", "rating", "capacity", "dimension", "limit", "maximum", "minimum", "tolerance", "clearance", "interval", "pressure rating", "what is the"}},
}

// classifyIntent 固定关键词规则的意图分类，规则顺序即优先级
func classifyIntent(query string) Intent {
	for _, rule := range intentRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(query, keyword) {
				return rule.intent
			}
		}
	}
	return IntentOther
}

// detectLanguage 粗粒度语言识别，含CJK字符判定为中文
func detectLanguage(query string) string {
	for _, r := range query {
		if unicode.Is(unicode.Han, r) {
			return "zh"
		}
	}
	return "en"
}

// summarizeLastTurn 取最近一轮用户发言的截断摘要，用于提示词的历史段
func summarizeLastTurn(history []ConversationTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != RoleUser {
			continue
		}
		content := strings.TrimSpace(history[i].Content)
		if content == "" {
			continue
		}
		if len(content) > 200 {
			content = content[:200]
		}
		return content
	}
	return ""
}
