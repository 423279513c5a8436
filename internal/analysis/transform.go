package analysis

import (
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// controlTokens are literal chat-template markers that local models
// sometimes leak into their output. Stripped from every string field
// before validation.
var controlTokens = []string{
	"<|im_start|>", "<|im_end|>",
	"<|start|>", "<|end|>", "<|message|>", "<|channel|>",
	"<|endoftext|>", "<|eot_id|>",
	"<|start_header_id|>", "<|end_header_id|>",
	"<|assistant|>", "<|user|>", "<|system|>",
	"<s>", "</s>",
	"[INST]", "[/INST]",
}

func stripControlTokens(s string) string {
	for _, tok := range controlTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return s
}

// nonContent reports whether s carries no letters or digits at all,
// i.e. punctuation or whitespace masquerading as a value.
func nonContent(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsNumber(r)
	}) == -1
}

// cleanString strips control tokens and whitespace and rejects
// non-content values.
func cleanString(s string) (string, bool) {
	s = strings.TrimSpace(stripControlTokens(s))
	if nonContent(s) {
		return "", false
	}
	return s, true
}

// cleanList cleans every element and drops the unusable ones.
func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if cleaned, ok := cleanString(item); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

// coerceScalar reads a field that should be a string, unwrapping a
// single-element list when the model produced one.
func coerceScalar(v gjson.Result) string {
	switch {
	case !v.Exists(), v.Type == gjson.Null:
		return ""
	case v.IsArray():
		arr := v.Array()
		if len(arr) == 1 {
			return coerceScalar(arr[0])
		}
		return ""
	case v.IsObject():
		return ""
	default:
		return v.String()
	}
}

// coerceStringList reads a field that should be a list of strings,
// wrapping a bare string into a single-element list.
func coerceStringList(v gjson.Result) []string {
	switch {
	case !v.Exists(), v.Type == gjson.Null:
		return nil
	case v.IsArray():
		var out []string
		for _, e := range v.Array() {
			if e.Type == gjson.String || e.Type == gjson.Number {
				out = append(out, e.String())
			}
		}
		return out
	case v.Type == gjson.String:
		return []string{v.String()}
	default:
		return nil
	}
}

// optionalString reads a nullable contextual-detail field. Anything
// missing or unusable becomes nil, which marshals as an explicit null.
func optionalString(v gjson.Result) *string {
	s, ok := cleanString(coerceScalar(v))
	if !ok {
		return nil
	}
	return &s
}
