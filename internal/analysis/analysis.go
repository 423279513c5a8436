// Package analysis validates the structured bookmark-analysis variant:
// model output is parsed, coerced into the expected shapes, cleaned of
// control-token artifacts, completed with field fallbacks, and finally
// checked against a fixed JSON schema. Callers retry the upstream call
// on validation failure up to a small attempt ceiling.
package analysis

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultMaxAttempts is the total upstream attempts (first call plus
// retries) callers should allow before giving up.
const DefaultMaxAttempts = 3

//go:embed schema.json
var schemaJSON []byte

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		loader := gojsonschema.NewBytesLoader(schemaJSON)
		compiledSchema, compileErr = gojsonschema.NewSchema(loader)
	})
	return compiledSchema, compileErr
}

// Payload is one validated analysis result.
type Payload struct {
	Summary           string            `json:"summary"`
	Category          string            `json:"category"`
	Highlights        []string          `json:"highlights"`
	ContextualDetails ContextualDetails `json:"contextualDetails"`
	RelatedResources  []string          `json:"relatedResources"`
	TargetAudience    string            `json:"targetAudience"`
}

// ContextualDetails holds the three individually nullable detail
// fields. Missing or unusable values are explicit nulls, never
// omitted keys.
type ContextualDetails struct {
	PrimaryDomain *string `json:"primaryDomain"`
	Format        *string `json:"format"`
	AccessMethod  *string `json:"accessMethod"`
}

// DefaultAudience is the fallback target-audience phrase.
func DefaultAudience(category string) string {
	return fmt.Sprintf("People interested in %s.", category)
}

// InvalidError reports why one attempt's output failed validation.
type InvalidError struct {
	Problems []string
}

func (e *InvalidError) Error() string {
	return "analysis output invalid: " + strings.Join(e.Problems, "; ")
}

// Validate runs the full normalization pipeline on one model reply and
// checks the result against the schema. A returned *InvalidError means
// the attempt failed and the caller may retry; any other error is a
// hard fault.
func Validate(text string) (*Payload, error) {
	payload, err := normalize(text)
	if err != nil {
		return nil, &InvalidError{Problems: []string{err.Error()}}
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis payload: %w", err)
	}
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("compile analysis schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate analysis payload: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, &InvalidError{Problems: problems}
	}
	return payload, nil
}

// normalize parses the reply text and applies the field transforms:
// shape coercion, control-token stripping, non-content rejection, and
// fallbacks.
func normalize(text string) (*Payload, error) {
	raw, err := extractObject(text)
	if err != nil {
		return nil, err
	}
	doc := gjson.Parse(raw)

	p := &Payload{}
	p.Summary, _ = cleanString(coerceScalar(doc.Get("summary")))
	p.Category, _ = cleanString(coerceScalar(doc.Get("category")))
	p.Highlights = cleanList(coerceStringList(doc.Get("highlights")))
	p.RelatedResources = cleanList(coerceStringList(doc.Get("relatedResources")))

	details := doc.Get("contextualDetails")
	p.ContextualDetails = ContextualDetails{
		PrimaryDomain: optionalString(details.Get("primaryDomain")),
		Format:        optionalString(details.Get("format")),
		AccessMethod:  optionalString(details.Get("accessMethod")),
	}

	audience, ok := cleanString(coerceScalar(doc.Get("targetAudience")))
	if !ok {
		audience = DefaultAudience(p.Category)
	}
	p.TargetAudience = audience
	return p, nil
}

// extractObject finds the JSON object in the reply, tolerating code
// fences and prose around it.
func extractObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", errors.New("no JSON object in model output")
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return "", errors.New("model output is not valid JSON")
	}
	if !gjson.Parse(raw).IsObject() {
		return "", errors.New("model output is not a JSON object")
	}
	return raw, nil
}
