// Package ternary implements three-valued build options: explicitly on,
// explicitly off, or "probe and decide" (auto).
//
// User input arrives untyped: strings from the command line, booleans and
// numbers from the JSON option cache. Parse normalizes all of them by
// formatting to a string, lower-casing and looking the result up in three
// fixed sets. Matching is exact membership; there is no prefix or fuzzy
// matching and no trimming.
package ternary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-buildaux/pkg/buildvars"
)

// Value is the resolved state of a ternary option.
type Value string

const (
	Yes  Value = "yes"
	No   Value = "no"
	Auto Value = "auto"
)

// Recognized spellings. These maps are never written after package init.
var (
	yesStrings  = setOf("y", "yes", "true", "t", "1", "on", "all")
	noStrings   = setOf("n", "no", "false", "f", "0", "off", "none")
	autoStrings = setOf("auto")
)

func setOf(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// ErrInvalidOptionValue is matched by every *InvalidOptionValueError via errors.Is.
var ErrInvalidOptionValue = errors.New("invalid value for ternary option")

// InvalidOptionValueError reports input that is not a ternary value.
type InvalidOptionValueError struct {
	Key string
	Raw any
}

func (e *InvalidOptionValueError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %q", ErrInvalidOptionValue, fmt.Sprint(e.Raw))
	}
	return fmt.Sprintf("%s %s: %q", ErrInvalidOptionValue, e.Key, fmt.Sprint(e.Raw))
}

func (e *InvalidOptionValueError) Is(target error) bool {
	return target == ErrInvalidOptionValue
}

// Parse normalizes raw into a Value. key is only used for error reporting.
func Parse(key string, raw any) (Value, error) {
	var text string
	switch r := raw.(type) {
	case string:
		text = r
	case Value:
		text = string(r)
	case nil:
		return "", &InvalidOptionValueError{Key: key, Raw: raw}
	default:
		text = fmt.Sprint(r)
	}

	lower := strings.ToLower(text)
	if _, ok := yesStrings[lower]; ok {
		return Yes, nil
	}
	if _, ok := noStrings[lower]; ok {
		return No, nil
	}
	if _, ok := autoStrings[lower]; ok {
		return Auto, nil
	}
	return "", &InvalidOptionValueError{Key: key, Raw: raw}
}

// Validate fails if v is not one of the three canonical values. It guards
// against values that reached a configuration without going through Parse.
func Validate(key string, v Value) error {
	if !v.IsValid() {
		return &InvalidOptionValueError{Key: key, Raw: string(v)}
	}
	return nil
}

// IsValid reports whether v is Yes, No or Auto.
func (v Value) IsValid() bool {
	switch v {
	case Yes, No, Auto:
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	if v.IsValid() {
		return string(v)
	}
	return fmt.Sprintf("unknown_ternary_value(%s)", string(v))
}

// Enabled reports whether the option should be turned on, given the outcome
// of an auto-detection probe. probe is only consulted for Auto.
func (v Value) Enabled(probe func() bool) bool {
	switch v {
	case Yes:
		return true
	case Auto:
		return probe != nil && probe()
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	if err := Validate("", v); err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, which also makes *Value
// usable with flag.TextVar.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := Parse("", string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON implements the json.Marshaler interface for Value.
func (v Value) MarshalJSON() ([]byte, error) {
	if err := Validate("", v); err != nil {
		return nil, err
	}
	return json.Marshal(string(v))
}

// UnmarshalJSON accepts any JSON scalar that Parse accepts, so both "yes" and
// true decode to Yes.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ternary value should be a JSON scalar, got %s", data)
	}
	parsed, err := Parse("", raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Describe builds the registry descriptor for a ternary option. It has no
// side effects; the caller registers the result.
func Describe(key, help string, def Value) buildvars.Variable {
	return buildvars.Variable{
		Key:     key,
		Help:    fmt.Sprintf("%s (yes|no|auto)", help),
		Default: string(def),
		Validator: func(key, value string) error {
			return Validate(key, Value(value))
		},
		Converter: func(raw any) (string, error) {
			v, err := Parse(key, raw)
			if err != nil {
				return "", err
			}
			return string(v), nil
		},
	}
}

// DescribeAuto is Describe with an Auto default.
func DescribeAuto(key, help string) buildvars.Variable {
	return Describe(key, help, Auto)
}

// Lookup reads a resolved ternary option back out of values.
func Lookup(values buildvars.Values, key string) (Value, error) {
	s, ok := values.Get(key)
	if !ok {
		return "", fmt.Errorf("ternary option %s is not resolved", key)
	}
	v := Value(s)
	if err := Validate(key, v); err != nil {
		return "", err
	}
	return v, nil
}
