package extract

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	xerrors "ChainPilot/internal/errors"
)

// CodeExtractionFailed 表示所有提取策略均未能得到合法 JSON。
const CodeExtractionFailed xerrors.Code = "EXTRACTION_FAILED"

const failureMessage = "no valid JSON data could be extracted from the response"

func init() {
	xerrors.Register(CodeExtractionFailed, xerrors.Attributes{
		Message:    failureMessage,
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusUnprocessableEntity,
	})
}

// ErrNoJSON 可用于 errors.Is 判断提取是否失败。
var ErrNoJSON = stdErrors.New(failureMessage)

// Object 是从模型输出中恢复出的 JSON 对象。数字以 json.Number 保存。
type Object map[string]any

// ExtractionError 在全部策略耗尽后返回。
type ExtractionError struct {
	// Schema 为提取器的名称，例如 launchpad。
	Schema string
	// Tried 记录按顺序尝试过的策略。
	Tried []string
}

// Error 实现 error 接口。
func (e *ExtractionError) Error() string {
	if e.Schema == "" {
		return failureMessage
	}
	return fmt.Sprintf("extract %s: %s", e.Schema, failureMessage)
}

// Unwrap 让 errors.Is(err, ErrNoJSON) 与 xerrors.CodeOf 同时生效。
func (e *ExtractionError) Unwrap() []error {
	return []error{ErrNoJSON, xerrors.New(CodeExtractionFailed, "", xerrors.WithMetadata("schema", e.Schema))}
}

// Extractor 按顺序执行一组策略，返回第一个成功的结果。
// Extractor 不持有可变状态，可被多个 goroutine 并发使用。
type Extractor struct {
	schema     string
	strategies []Strategy
}

// FirstOf 组合多个策略，依次尝试直到某个策略命中。
func FirstOf(strategies ...Strategy) *Extractor {
	cloned := make([]Strategy, len(strategies))
	copy(cloned, strategies)
	return &Extractor{strategies: cloned}
}

// Named 返回带有 schema 名称的副本，名称会出现在错误与指标中。
func (e *Extractor) Named(schema string) *Extractor {
	return &Extractor{schema: schema, strategies: e.strategies}
}

// Schema 返回提取器名称。
func (e *Extractor) Schema() string {
	return e.schema
}

// Strategies 返回策略名称列表。
func (e *Extractor) Strategies() []string {
	names := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Extract 返回第一个被成功解析的 JSON 对象。
func (e *Extractor) Extract(raw string) (Object, error) {
	obj, _, err := e.ExtractWithStrategy(raw)
	return obj, err
}

// ExtractWithStrategy 与 Extract 相同，额外返回命中的策略名称。
func (e *Extractor) ExtractWithStrategy(raw string) (Object, string, error) {
	value, name, ok := e.run(raw, isObject)
	if !ok {
		return nil, "", e.failure()
	}
	obj, _ := asObject(value)
	return obj, name, nil
}

// ExtractValue 允许返回顶层数组，供期望列表的调用方使用。
func (e *Extractor) ExtractValue(raw string) (any, error) {
	value, _, ok := e.run(raw, isDocument)
	if !ok {
		return nil, e.failure()
	}
	if obj, isObj := asObject(value); isObj {
		return obj, nil
	}
	return value, nil
}

func (e *Extractor) run(raw string, accept acceptFunc) (any, string, bool) {
	for _, s := range e.strategies {
		if s.find == nil {
			continue
		}
		if value, ok := s.find(raw, accept); ok {
			return value, s.Name, true
		}
	}
	return nil, "", false
}

func (e *Extractor) failure() error {
	return &ExtractionError{Schema: e.schema, Tried: e.Strategies()}
}

// Parse 将整段文本解析为 JSON，用于调用方在启用提取器前的直接尝试。
func Parse(raw string) (Object, error) {
	value, ok := decode(raw)
	if !ok {
		return nil, &ExtractionError{Tried: []string{"direct"}}
	}
	obj, isObj := asObject(value)
	if !isObj {
		return nil, &ExtractionError{Tried: []string{"direct"}}
	}
	return obj, nil
}

// NormalizeOwner 将 owner 字段中的 "None"、空串、null 与 "0x" 统一为 null，
// 表示由调用方使用自己的签名身份。对象会被原地修改并返回。
func NormalizeOwner(obj Object) Object {
	if obj == nil {
		return obj
	}
	value, ok := obj["owner"]
	if !ok {
		return obj
	}
	switch owner := value.(type) {
	case nil:
	case string:
		if owner == "None" || owner == "" || owner == "0x" {
			obj["owner"] = nil
		}
	}
	return obj
}

type acceptFunc func(value any) bool

// asObject 同时接受解码得到的 map 与自定义策略直接返回的 Object。
func asObject(value any) (Object, bool) {
	switch v := value.(type) {
	case Object:
		return v, true
	case map[string]any:
		return Object(v), true
	default:
		return nil, false
	}
}

func isObject(value any) bool {
	_, ok := asObject(value)
	return ok
}

func isDocument(value any) bool {
	switch value.(type) {
	case map[string]any, Object, []any:
		return true
	default:
		return false
	}
}

// decode 要求文本恰好包含一个 JSON 值，尾随内容视为失败。
func decode(text string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return value, true
}
