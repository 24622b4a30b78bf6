package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultRoutePath is recorded when a route's path is not a literal string.
const DefaultRoutePath = "/unknown"

// FileRecord is the durable cache entry for one tracked file, keyed by its
// project-relative path.
type FileRecord struct {
	Path string `json:"-"`
	Hash string `json:"hash"`
}

// Fingerprint returns the record's hash as a Fingerprint. An empty hash
// yields the invalid Fingerprint.
func (r FileRecord) Fingerprint() Fingerprint {
	return ParseFingerprint(r.Hash)
}

// RouteBinding associates a handler with an HTTP verb and a URL path.
// Exactly one of Function and Object is set: decorator-style routes name the
// decorated function, call-style routes name the receiver object.
type RouteBinding struct {
	Function string `json:"function,omitempty"`
	Object   string `json:"object,omitempty"`
	Method   string `json:"method"`
	Path     string `json:"path"`
}

// Target returns the function or object name.
func (r RouteBinding) Target() string {
	if r.Function != "" {
		return r.Function
	}
	return r.Object
}

// TargetKind returns "function" or "object".
func (r RouteBinding) TargetKind() string {
	if r.Function != "" {
		return "function"
	}
	return "object"
}

// AnalysisResult holds the structural facts extracted from one file.
// Error is set only for files whose extraction failed; such results carry no
// facts.
type AnalysisResult struct {
	Language  string
	Functions []string
	Classes   Classes
	Routes    []RouteBinding
	Error     string
}

// NewResult returns an empty result for language.
func NewResult(language string) *AnalysisResult {
	return &AnalysisResult{Language: language}
}

// ErrorResult returns the report entry for a file that failed to analyze.
func ErrorResult(language string, err error) *AnalysisResult {
	return &AnalysisResult{Language: language, Error: err.Error()}
}

// Failed reports whether the result is an error entry.
func (r *AnalysisResult) Failed() bool {
	return r.Error != ""
}

type resultJSON struct {
	Language  string         `json:"language"`
	Functions []string       `json:"functions"`
	Classes   Classes        `json:"classes"`
	Routes    []RouteBinding `json:"routes"`
	Error     string         `json:"error,omitempty"`
}

// MarshalJSON encodes empty fact lists as [] rather than null.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Language:  r.Language,
		Functions: r.Functions,
		Classes:   r.Classes,
		Routes:    r.Routes,
		Error:     r.Error,
	}
	if out.Functions == nil {
		out.Functions = []string{}
	}
	if out.Routes == nil {
		out.Routes = []RouteBinding{}
	}
	return json.Marshal(out)
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = AnalysisResult{
		Language: in.Language,
		Classes:  in.Classes,
		Error:    in.Error,
	}
	if len(in.Functions) > 0 {
		r.Functions = in.Functions
	}
	if len(in.Routes) > 0 {
		r.Routes = in.Routes
	}
	return nil
}

// Classes maps class or type names to their method names. Unlike a Go map it
// remembers the order in which names were declared, and encodes to JSON in
// that order. The zero value is an empty, usable Classes.
type Classes struct {
	names   []string
	methods map[string][]string
}

// Declare adds name with no methods. Declaring an existing name is a no-op.
func (c *Classes) Declare(name string) {
	if c.methods == nil {
		c.methods = make(map[string][]string)
	}
	if _, ok := c.methods[name]; ok {
		return
	}
	c.names = append(c.names, name)
	c.methods[name] = nil
}

// AddMethod appends method to class, declaring class first if needed.
func (c *Classes) AddMethod(class, method string) {
	c.Declare(class)
	c.methods[class] = append(c.methods[class], method)
}

// Names returns class names in declaration order.
func (c Classes) Names() []string {
	return c.names
}

// Methods returns the methods of class in source order.
func (c Classes) Methods(class string) []string {
	return c.methods[class]
}

// Has reports whether class was declared.
func (c Classes) Has(class string) bool {
	_, ok := c.methods[class]
	return ok
}

func (c Classes) Len() int {
	return len(c.names)
}

func (c Classes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		methods := c.methods[name]
		if methods == nil {
			methods = []string{}
		}
		val, err := json.Marshal(methods)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping its key order.
func (c *Classes) UnmarshalJSON(data []byte) error {
	*c = Classes{}
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("store: classes: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("store: classes: expected key, got %v", tok)
		}
		var methods []string
		if err := dec.Decode(&methods); err != nil {
			return fmt.Errorf("store: classes: methods of %q: %w", name, err)
		}
		c.Declare(name)
		for _, m := range methods {
			c.AddMethod(name, m)
		}
	}
	_, err = dec.Token()
	return err
}

// File is a row of the results database: the last successful analysis of a
// path.
type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LastIndexed time.Time
}

// RouteRow is a route joined with the file that declares it.
type RouteRow struct {
	File string
	RouteBinding
}

// SymbolRow is a function or class name joined with its file.
type SymbolRow struct {
	File    string
	Name    string
	Methods []string
}
