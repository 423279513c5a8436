// Package models maps model names to tool-calling capabilities. The
// mapping is an ordered prefix table so that supporting a new family is
// a row addition, not a control-flow edit.
package models

import "strings"

// Capabilities describes what a model family's tool-calling
// implementation supports.
type Capabilities struct {
	SupportsTools bool
	// SupportsRequiredToolChoice is false for families whose runtimes
	// accept tool definitions but reject tool_choice "required". For
	// those, a forced tool downgrades to "auto".
	SupportsRequiredToolChoice bool
}

type family struct {
	prefix string
	caps   Capabilities
}

// First matching prefix wins, so narrower names come before wider ones
// (o1-mini before o1).
var families = []family{
	{"gpt-oss", Capabilities{SupportsTools: true, SupportsRequiredToolChoice: false}},
	{"oss-", Capabilities{SupportsTools: true, SupportsRequiredToolChoice: false}},
	{"o1-mini", Capabilities{SupportsTools: false, SupportsRequiredToolChoice: false}},
	{"o1-preview", Capabilities{SupportsTools: false, SupportsRequiredToolChoice: false}},
	{"o1", Capabilities{SupportsTools: true, SupportsRequiredToolChoice: false}},
	{"davinci", Capabilities{SupportsTools: false, SupportsRequiredToolChoice: false}},
	{"babbage", Capabilities{SupportsTools: false, SupportsRequiredToolChoice: false}},
}

var defaultCaps = Capabilities{SupportsTools: true, SupportsRequiredToolChoice: true}

// Lookup returns the capabilities for a model name. Unknown models get
// full support.
func Lookup(model string) Capabilities {
	name := strings.ToLower(strings.TrimSpace(model))
	for _, f := range families {
		if strings.HasPrefix(name, f.prefix) {
			return f.caps
		}
	}
	return defaultCaps
}

// SupportsTools reports whether the model can receive tool definitions.
func SupportsTools(model string) bool {
	return Lookup(model).SupportsTools
}

// SupportsRequiredToolChoice reports whether the model accepts
// tool_choice "required".
func SupportsRequiredToolChoice(model string) bool {
	return Lookup(model).SupportsRequiredToolChoice
}
