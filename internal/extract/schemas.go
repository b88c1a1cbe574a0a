package extract

import (
	"fmt"
	"sort"
)

// 内置的提取器名称。
const (
	SchemaGeneric   = "generic"
	SchemaLaunchpad = "launchpad"
	SchemaSentiment = "sentiment"
)

const defaultLookbehind = 10

// Generic 只使用通用策略，适用于意图识别和 DeFi 分析的输出。
func Generic() *Extractor {
	return FirstOf(FencedJSON(), GenericFenced(), BraceScan()).Named(SchemaGeneric)
}

// Launchpad 面向代币发行参数 {name, symbol, initialSupply, maxSupply, owner}。
func Launchpad() *Extractor {
	keyed := KeyedHeuristic{
		Keys:       []string{"name", "symbol"},
		AnchorKey:  "name",
		TailKeys:   []string{"symbol", "owner"},
		Lookbehind: defaultLookbehind,
	}
	return FirstOf(FencedJSON(), GenericFenced(), BraceScan(), keyed.Strategy()).Named(SchemaLaunchpad)
}

// Sentiment 面向情绪分析结果 {sentiment}。
func Sentiment() *Extractor {
	keyed := KeyedHeuristic{
		Keys:       []string{"sentiment"},
		AnchorKey:  "sentiment",
		TailKeys:   []string{"sentiment"},
		Lookbehind: defaultLookbehind,
	}
	return FirstOf(FencedJSON(), GenericFenced(), BraceScan(), keyed.Strategy()).Named(SchemaSentiment)
}

var schemas = map[string]func() *Extractor{
	SchemaGeneric:   Generic,
	SchemaLaunchpad: Launchpad,
	SchemaSentiment: Sentiment,
}

// ForSchema 按名称返回内置提取器。
func ForSchema(name string) (*Extractor, error) {
	build, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown extraction schema %q (available: %v)", name, SchemaNames())
	}
	return build(), nil
}

// SchemaNames 返回排序后的内置提取器名称。
func SchemaNames() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
