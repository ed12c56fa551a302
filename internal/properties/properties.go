// Package properties flattens the serialized property documents carried by
// PostHog export rows into typed values.
//
// Export documents are frequently mangled by the CSV round trip: escaped
// quotes, doubled quotes, truncated tails. Parsing tries three strategies in
// order: strict JSON, JSON after quote repair, and per-key pattern
// extraction. A document that defeats all three still yields a full set of
// declared defaults so the row is never dropped.
package properties

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed schema.yml
var schemaFile embed.FS

// FieldType enumerates the value types a schema field can declare.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
)

// Strategy identifies which parse strategy produced a value set.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyJSON
	StrategyRepairedJSON
	StrategyPattern
)

func (s Strategy) String() string {
	switch s {
	case StrategyJSON:
		return "json"
	case StrategyRepairedJSON:
		return "repaired_json"
	case StrategyPattern:
		return "pattern"
	default:
		return "none"
	}
}

// Field declares one property the flattener promotes to a column.
type Field struct {
	Name      string    `yaml:"name"`
	Key       string    `yaml:"key"`
	Type      FieldType `yaml:"type"`
	NestedSet bool      `yaml:"nested_set"`
	Pattern   string    `yaml:"pattern"`
}

type schemaDoc struct {
	Fields []Field `yaml:"fields"`
}

// Compiled regex cache
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

type flattener struct {
	fields []Field
	cache  *regexCache
}

var (
	parser *flattener
	once   sync.Once
)

func getFlattener() *flattener {
	once.Do(func() {
		parser = &flattener{cache: newRegexCache()}

		data, err := schemaFile.ReadFile("schema.yml")
		if err != nil {
			panic(fmt.Sprintf("properties: missing embedded schema: %v", err))
		}

		var doc schemaDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			panic(fmt.Sprintf("properties: invalid embedded schema: %v", err))
		}
		parser.fields = doc.Fields
	})
	return parser
}

// Fields returns the declared schema fields.
func Fields() []Field {
	return getFlattener().fields
}

// Values holds one flattened property document. Missing keys resolve to the
// declared defaults: "" for strings, 0 for ints, nil for floats and bools.
type Values struct {
	strings map[string]string
	ints    map[string]int
	floats  map[string]float64
	bools   map[string]bool
}

func newValues() Values {
	return Values{
		strings: make(map[string]string),
		ints:    make(map[string]int),
		floats:  make(map[string]float64),
		bools:   make(map[string]bool),
	}
}

// String returns the value of a string field, or "" when absent.
func (v Values) String(name string) string {
	return v.strings[name]
}

// Int returns the value of an int field, or 0 when absent.
func (v Values) Int(name string) int {
	return v.ints[name]
}

// Float returns the value of a float field, or nil when absent.
func (v Values) Float(name string) *float64 {
	if f, ok := v.floats[name]; ok {
		return &f
	}
	return nil
}

// Bool returns the value of a bool field, or nil when absent.
func (v Values) Bool(name string) *bool {
	if b, ok := v.bools[name]; ok {
		return &b
	}
	return nil
}

// Has reports whether a field resolved to a value.
func (v Values) Has(name string) bool {
	if _, ok := v.strings[name]; ok {
		return true
	}
	if _, ok := v.ints[name]; ok {
		return true
	}
	if _, ok := v.floats[name]; ok {
		return true
	}
	_, ok := v.bools[name]
	return ok
}

// Parse flattens a property document. It never fails: an unparseable
// document returns empty Values and StrategyNone.
func Parse(doc string) (Values, Strategy) {
	f := getFlattener()

	doc = strings.TrimSpace(doc)
	if doc == "" {
		return newValues(), StrategyNone
	}

	if m, ok := unmarshalObject(doc); ok {
		return f.fromDocument(m), StrategyJSON
	}

	if m, ok := unmarshalObject(repairQuotes(doc)); ok {
		return f.fromDocument(m), StrategyRepairedJSON
	}

	if values, ok := f.fromPatterns(doc); ok {
		return values, StrategyPattern
	}

	return newValues(), StrategyNone
}

// repairQuotes undoes the two quote manglings the CSV round trip produces:
// backslash-escaped quotes and doubled quotes.
func repairQuotes(doc string) string {
	repaired := strings.ReplaceAll(doc, `\"`, `"`)
	return strings.ReplaceAll(repaired, `""`, `"`)
}

func unmarshalObject(doc string) (map[string]interface{}, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return nil, false
	}
	return m, true
}

// fromDocument resolves every schema field against a parsed document.
func (f *flattener) fromDocument(m map[string]interface{}) Values {
	values := newValues()

	var nested map[string]interface{}
	if raw, ok := m["$set"]; ok {
		nested, _ = raw.(map[string]interface{})
	}

	for _, field := range f.fields {
		raw, ok := m[field.Key]
		if !ok && field.NestedSet && nested != nil {
			raw, ok = nested[field.Key]
		}
		if !ok || raw == nil {
			continue
		}
		values.set(field, raw)
	}
	return values
}

// fromPatterns extracts whatever individual fields still match their
// fallback patterns in an irrecoverably malformed document.
func (f *flattener) fromPatterns(doc string) (Values, bool) {
	values := newValues()
	found := false

	for _, field := range f.fields {
		if field.Pattern == "" {
			continue
		}
		regex, err := f.cache.get(field.Pattern)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(doc)
		if len(matches) < 2 {
			continue
		}
		values.set(field, matches[1])
		found = true
	}
	return values, found
}

// set coerces a raw value onto the field's declared type. Values that fail
// coercion are treated as absent.
func (v Values) set(field Field, raw interface{}) {
	switch field.Type {
	case TypeString:
		if s, ok := coerceString(raw); ok {
			v.strings[field.Name] = s
		}
	case TypeInt:
		if f, ok := coerceFloat(raw); ok {
			v.ints[field.Name] = int(f)
		}
	case TypeFloat:
		if f, ok := coerceFloat(raw); ok {
			v.floats[field.Name] = f
		}
	case TypeBool:
		if b, ok := coerceBool(raw); ok {
			v.bools[field.Name] = b
		}
	}
}

func coerceString(raw interface{}) (string, bool) {
	switch val := raw.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

func coerceFloat(raw interface{}) (float64, bool) {
	switch val := raw.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceBool(raw interface{}) (bool, bool) {
	switch val := raw.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
		return false, false
	case float64:
		return val != 0, true
	default:
		return false, false
	}
}
