package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Verdict 是 oracle 输出的结构化裁决：立场 + 置信度 + 理由。
// stance 兼容 sentiment 场景（bullish/bearish/neutral）与辩论场景（bull/bear/tie）。
type Verdict struct {
	Stance     string   `json:"stance"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Arguments  []string `json:"arguments,omitempty"`
}

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["stance", "confidence"],
  "properties": {
    "stance": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"},
    "arguments": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	schemaOnce    sync.Once
	verdictSchema *jsonschema.Schema
	schemaErr     error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("verdict.json", strings.NewReader(verdictSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		verdictSchema, schemaErr = compiler.Compile("verdict.json")
	})
	return verdictSchema, schemaErr
}

// ParseVerdict 从模型原文中提取并校验裁决 JSON。
// 容忍代码围栏与夹杂文字；sentiment 字段视为 stance 的别名。
func ParseVerdict(raw string) (Verdict, error) {
	payload, ok := extractObject(raw)
	if !ok {
		return Verdict{}, fmt.Errorf("no JSON object found in oracle output")
	}
	if !gjson.Valid(payload) {
		return Verdict{}, fmt.Errorf("oracle output is not valid JSON")
	}
	parsed := gjson.Parse(payload)
	stance := strings.TrimSpace(parsed.Get("stance").String())
	if stance == "" {
		stance = strings.TrimSpace(parsed.Get("sentiment").String())
	}
	normalized := map[string]any{
		"stance":     strings.ToLower(stance),
		"confidence": parsed.Get("confidence").Float(),
		"reasoning":  parsed.Get("reasoning").String(),
	}
	if args := parsed.Get("arguments"); args.IsArray() {
		list := make([]any, 0)
		args.ForEach(func(_, v gjson.Result) bool {
			if s := strings.TrimSpace(v.String()); s != "" {
				list = append(list, s)
			}
			return true
		})
		if len(list) > 0 {
			normalized["arguments"] = list
		}
	}
	schema, err := compiledSchema()
	if err != nil {
		return Verdict{}, fmt.Errorf("verdict schema compile failed: %w", err)
	}
	if err := schema.Validate(normalized); err != nil {
		return Verdict{}, fmt.Errorf("verdict schema validation failed: %w", err)
	}
	var v Verdict
	buf, _ := json.Marshal(normalized)
	if err := json.Unmarshal(buf, &v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

const codeFence = "```"

// extractObject 提取第一个平衡的大括号 JSON 对象，优先处理代码围栏。
func extractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if start := strings.Index(raw, codeFence); start != -1 {
		rest := raw[start+len(codeFence):]
		if end := strings.Index(rest, codeFence); end != -1 {
			block := strings.TrimLeft(rest[:end], "\r\n")
			if idx := strings.Index(block, "\n"); idx != -1 {
				first := strings.TrimSpace(block[:idx])
				if first != "" && !strings.ContainsAny(first, "[{") {
					block = block[idx+1:]
				}
			}
			if obj, ok := balancedObject(block); ok {
				return obj, true
			}
		}
	}
	return balancedObject(raw)
}

func balancedObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch ch {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
