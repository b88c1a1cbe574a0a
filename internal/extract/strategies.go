package extract

import (
	"regexp"
	"strings"
)

// 策略名称，同时用作指标标签。
const (
	StrategyFencedJSON     = "fenced_json"
	StrategyGenericFenced  = "generic_fenced"
	StrategyBraceScan      = "brace_scan"
	StrategyKeyedHeuristic = "keyed_heuristic"
)

var (
	fencedJSONPattern    = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	genericFencedPattern = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	bracePattern         = regexp.MustCompile(`(?s)\{.*?\}`)
)

// Strategy 是一个命名的纯函数提取步骤。
type Strategy struct {
	Name string
	find func(raw string, accept acceptFunc) (any, bool)
}

// NewStrategy 基于任意函数构造策略，结果仍需通过提取器的类型检查。
func NewStrategy(name string, fn func(raw string) (any, bool)) Strategy {
	return Strategy{
		Name: name,
		find: func(raw string, accept acceptFunc) (any, bool) {
			value, ok := fn(raw)
			if !ok || !accept(value) {
				return nil, false
			}
			return value, true
		},
	}
}

// FencedJSON 依次尝试每个 ```json 代码块。
func FencedJSON() Strategy {
	return Strategy{Name: StrategyFencedJSON, find: func(raw string, accept acceptFunc) (any, bool) {
		for _, match := range fencedJSONPattern.FindAllStringSubmatch(raw, -1) {
			if value, ok := decode(match[1]); ok && accept(value) {
				return value, true
			}
		}
		return nil, false
	}}
}

// GenericFenced 尝试未标注语言的代码块，仅解析以 { 或 [ 开头的内容。
func GenericFenced() Strategy {
	return Strategy{Name: StrategyGenericFenced, find: func(raw string, accept acceptFunc) (any, bool) {
		for _, match := range genericFencedPattern.FindAllStringSubmatch(raw, -1) {
			body := strings.TrimSpace(match[1])
			if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
				continue
			}
			if value, ok := decode(body); ok && accept(value) {
				return value, true
			}
		}
		return nil, false
	}}
}

// BraceScan 以非贪婪方式扫描 {...} 片段。嵌套对象不会被还原。
func BraceScan() Strategy {
	return Strategy{Name: StrategyBraceScan, find: func(raw string, accept acceptFunc) (any, bool) {
		for _, candidate := range bracePattern.FindAllString(raw, -1) {
			if strings.Count(candidate, "{") != strings.Count(candidate, "}") {
				continue
			}
			if !strings.Contains(candidate, `"`) {
				continue
			}
			value, ok := decode(candidate)
			if !ok {
				continue
			}
			m, isMap := value.(map[string]any)
			if !isMap || len(m) == 0 || !accept(value) {
				continue
			}
			return value, true
		}
		return nil, false
	}}
}

// KeyedHeuristic 通过已知字段名定位 JSON 片段，是针对单一结构的兜底策略。
type KeyedHeuristic struct {
	// Keys 中的字段必须全部出现。
	Keys []string
	// AnchorKey 决定片段起点：其前 Lookbehind 个字符之后的第一个 {。
	AnchorKey string
	// TailKeys 中最靠后的字段之后的第一个 } 为片段终点，缺失的字段被忽略。
	TailKeys   []string
	Lookbehind int
}

// Strategy 将启发式包装为策略。
func (k KeyedHeuristic) Strategy() Strategy {
	return Strategy{Name: StrategyKeyedHeuristic, find: func(raw string, accept acceptFunc) (any, bool) {
		span, ok := k.span(raw)
		if !ok {
			return nil, false
		}
		if value, ok := decode(span); ok && isObject(value) && accept(value) {
			return value, true
		}
		repaired := strings.ReplaceAll(span, "'", `"`)
		if value, ok := decode(repaired); ok && isObject(value) && accept(value) {
			return value, true
		}
		return nil, false
	}}
}

func (k KeyedHeuristic) span(raw string) (string, bool) {
	if len(k.Keys) == 0 {
		return "", false
	}
	for _, key := range k.Keys {
		if keyIndex(raw, key) < 0 {
			return "", false
		}
	}
	anchorKey := k.AnchorKey
	if anchorKey == "" {
		anchorKey = k.Keys[0]
	}
	anchor := keyIndex(raw, anchorKey)
	if anchor < 0 {
		return "", false
	}

	from := anchor - k.Lookbehind
	if from < 0 {
		from = 0
	}
	start := strings.IndexByte(raw[from:], '{')
	if start < 0 {
		return "", false
	}
	start += from

	tail := anchor
	for _, key := range k.TailKeys {
		if idx := keyIndex(raw, key); idx > tail {
			tail = idx
		}
	}
	end := strings.IndexByte(raw[tail:], '}')
	if end < 0 {
		return "", false
	}
	end += tail + 1
	if end <= start {
		return "", false
	}
	return raw[start:end], true
}

// keyIndex 返回 "key": 或 'key': 首次出现的位置。
func keyIndex(raw, key string) int {
	double := strings.Index(raw, `"`+key+`":`)
	single := strings.Index(raw, `'`+key+`':`)
	switch {
	case double < 0:
		return single
	case single < 0:
		return double
	case single < double:
		return single
	default:
		return double
	}
}
