// Package buildvars is the registry that build descriptions declare their
// configuration variables in.
//
// A Variable is a plain descriptor: a key, a help text, a default and two
// optional hooks. The Converter turns whatever the user supplied (a string
// from the command line, a bool or number from the JSON option cache) into the
// canonical string form; the Validator then checks the converted value. Typed
// option kinds such as ternary options are built on top of this by returning a
// Variable with both hooks filled in.
//
// Resolution happens once per configuration run. The returned Values are a
// fresh map and are not touched by the registry afterwards.
package buildvars

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

// ErrUnknownVariable is returned when an override names a key nobody registered.
var ErrUnknownVariable = errors.New("unknown build variable")

// Variable describes one configuration variable.
type Variable struct {
	Key     string
	Help    string
	Default string
	// Validator checks an already converted value. May be nil.
	Validator func(key, value string) error
	// Converter maps a raw user value to its canonical string. May be nil,
	// in which case the raw value is formatted with fmt.Sprint.
	Converter func(raw any) (string, error)
}

// StringVariable declares a free-form string variable.
func StringVariable(key, help, def string) Variable {
	return Variable{
		Key:     key,
		Help:    fmt.Sprintf("%s (string)", help),
		Default: def,
	}
}

// Values holds resolved variables keyed by variable key.
type Values map[string]string

// Get returns the resolved value of key.
func (v Values) Get(key string) (string, bool) {
	s, ok := v[key]
	return s, ok
}

// Keys returns the resolved keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Registry collects variables in declaration order.
type Registry struct {
	vars  []Variable
	index map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers variables. Keys must be non-empty and unique within the registry.
func (r *Registry) Add(vars ...Variable) error {
	for _, v := range vars {
		if v.Key == "" {
			return fmt.Errorf("build variable with empty key (help %q)", v.Help)
		}
		if _, exists := r.index[v.Key]; exists {
			return fmt.Errorf("build variable %q is already registered", v.Key)
		}
		r.index[v.Key] = len(r.vars)
		r.vars = append(r.vars, v)
	}
	return nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.index[key]
	return ok
}

// Variables returns a copy of the registered variables in declaration order.
func (r *Registry) Variables() []Variable {
	return slices.Clone(r.vars)
}

// Resolve computes the value of every registered variable. A variable takes
// its override when one is present and its default otherwise; either way the
// value runs through the converter and then the validator. The first failure
// aborts resolution. Converter and validator errors are returned as-is since
// they already name the offending key.
func (r *Registry) Resolve(overrides map[string]any) (Values, error) {
	var unknown []string
	for k := range overrides {
		if !r.Has(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, strings.Join(unknown, ", "))
	}

	values := make(Values, len(r.vars))
	for _, v := range r.vars {
		var raw any = v.Default
		if o, ok := overrides[v.Key]; ok {
			raw = o
			plog.Debug("Overriding build variable", "key", v.Key, "value", o)
		}

		var value string
		if v.Converter != nil {
			converted, err := v.Converter(raw)
			if err != nil {
				return nil, err
			}
			value = converted
		} else {
			value = fmt.Sprint(raw)
		}

		if v.Validator != nil {
			if err := v.Validator(v.Key, value); err != nil {
				return nil, err
			}
		}
		values[v.Key] = value
	}
	return values, nil
}

// ParseAssignments turns KEY=VALUE arguments into an override map.
// Later assignments to the same key win.
func ParseAssignments(args []string) (map[string]any, error) {
	overrides := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid variable assignment %q: expected KEY=VALUE", arg)
		}
		overrides[key] = value
	}
	return overrides, nil
}

// Merge layers override maps; keys in later maps replace earlier ones.
func Merge(layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// LoadCache reads a JSON option cache. A missing file yields an empty map.
// Values keep their JSON types (string, bool, float64) and are expected to be
// passed back through Resolve.
func LoadCache(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil // No cache yet, which is a normal case.
		}
		return nil, fmt.Errorf("error opening option cache %s: %w", path, err)
	}
	defer file.Close()

	plog.Debug("Loading option cache", "path", path)
	cached := make(map[string]any)
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cached); err != nil {
		return nil, fmt.Errorf("error parsing option cache %s: %w", path, err)
	}
	return cached, nil
}

// SaveCache writes resolved values as a JSON option cache.
func SaveCache(path string, values Values) error {
	jsonData, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal option cache: %w", err)
	}
	if err := os.WriteFile(path, append(jsonData, '\n'), util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write option cache %s: %w", path, err)
	}
	plog.Debug("Saved option cache", "path", path, "variables", len(values))
	return nil
}

// WriteHelp prints one block per variable in declaration order. When values is
// non-nil the resolved value is shown as well.
func (r *Registry) WriteHelp(w io.Writer, values Values) error {
	for _, v := range r.vars {
		if _, err := fmt.Fprintf(w, "\n%s: %s\n    default: %s\n", v.Key, v.Help, v.Default); err != nil {
			return err
		}
		if values == nil {
			continue
		}
		if actual, ok := values[v.Key]; ok {
			if _, err := fmt.Fprintf(w, "    actual: %s\n", actual); err != nil {
				return err
			}
		}
	}
	return nil
}
