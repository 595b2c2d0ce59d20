package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const schemaURL = "output.json"

// Schema is a JSON schema that workflow output must satisfy. It is sent to the
// engine as the structured output format and checked locally on every response.
type Schema struct {
	raw      json.RawMessage
	compiled *jsv.Schema
}

var reflector = &jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

var printer = message.NewPrinter(language.English)

// SchemaFor reflects a schema from the JSON shape of T.
func SchemaFor[T any]() *Schema {
	var zero T
	return NewSchema(reflector.Reflect(&zero))
}

// NewSchema wraps an already built schema and compiles it for validation.
func NewSchema(root *jsonschema.Schema) *Schema {
	root.Version = ""
	raw, err := json.Marshal(root)
	if err != nil {
		// A reflected schema always marshals; a hand-built one that does not is a programming error.
		panic(fmt.Sprintf("marshalling schema: %v", err))
	}
	compiled, err := compile(raw)
	if err != nil {
		panic(fmt.Sprintf("compiling schema: %v", err))
	}
	return &Schema{raw: raw, compiled: compiled}
}

func compile(raw []byte) (*jsv.Schema, error) {
	doc, err := jsv.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsv.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

// JSON returns the schema document.
func (s *Schema) JSON() json.RawMessage {
	return s.raw
}

// Violation describes where output failed the schema.
type Violation struct {
	Path    string
	Message string
}

func (v *Violation) Error() string {
	return v.Path + ": " + v.Message
}

// Validate parses raw as a single JSON value and checks it against the schema.
func (s *Schema) Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &Violation{Path: "$", Message: "invalid JSON: " + err.Error()}
	}
	if dec.More() {
		return &Violation{Path: "$", Message: "unexpected data after JSON value"}
	}
	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsv.ValidationError)
	if !ok {
		return &Violation{Path: "$", Message: err.Error()}
	}
	// The deepest cause names the keyword that failed.
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &Violation{Path: jsonPath(ve.InstanceLocation), Message: ve.ErrorKind.LocalizedString(printer)}
}

// jsonPath renders an instance location as $.a.b[0].
func jsonPath(loc []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, tok := range loc {
		if _, err := strconv.Atoi(tok); err == nil {
			fmt.Fprintf(&sb, "[%s]", tok)
			continue
		}
		sb.WriteString(".")
		sb.WriteString(tok)
	}
	return sb.String()
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even when asked for bare JSON.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
