package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "VCAM_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts with precedence CLI flag > env (VCAM_ prefix) > TOML.
// Fields keep their current value, normally the flag default, when no source
// sets them. Flags changed on cmd are never overwritten.
//
// Values that cannot be converted to the field type are skipped and reported
// together in the returned error; the remaining fields are still applied.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: %T is not a pointer to a struct", opts)
	}
	l := &loader{v: v.Elem(), changed: changedFlags(cmd)}

	if path := l.configPath(); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			var tree map[string]any
			if err := toml.Unmarshal(data, &tree); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
			l.applyTOML(tree)
		}
	}
	l.applyEnv()
	return errors.Join(l.errs...)
}

type loader struct {
	v       reflect.Value
	changed map[string]bool
	errs    []error
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	visit := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(visit)
	cmd.PersistentFlags().VisitAll(visit)
	return changed
}

func (l *loader) configPath() string {
	if f := l.v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// fields yields the settable fields not overridden on the command line.
func (l *loader) fields(yield func(reflect.StructField, reflect.Value) bool) {
	t := l.v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() || l.changed[flagName(sf.Name)] {
			continue
		}
		if !yield(sf, l.v.Field(i)) {
			return
		}
	}
}

func (l *loader) applyTOML(tree map[string]any) {
	for sf, field := range l.fields {
		path := sf.Tag.Get("toml")
		if path == "" {
			continue
		}
		value, ok := lookup(tree, path)
		if !ok {
			continue
		}
		if err := assign(field, value); err != nil {
			l.errs = append(l.errs, fmt.Errorf("toml %s: %w", path, err))
		}
	}
}

func (l *loader) applyEnv() {
	for sf, field := range l.fields {
		key := sf.Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || raw == "" {
			continue
		}
		if err := parseInto(field, raw); err != nil {
			l.errs = append(l.errs, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err))
		}
	}
}

// flagName converts a field name to the kebab-case flag humacli registers.
// Runs of capitals are one word: "NATSHost" -> "nats-host",
// "SHMSlots" -> "shm-slots", "LoggingLevel" -> "logging-level".
func flagName(field string) string {
	runes := []rune(field)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup resolves a dotted path such as "nats.port" in a decoded TOML tree.
func lookup(tree map[string]any, path string) (any, bool) {
	keys := strings.Split(path, ".")
	node := tree
	for _, key := range keys[:len(keys)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	value, ok := node[keys[len(keys)-1]]
	return value, ok
}

// assign stores a decoded TOML value. Strings are parsed like env values so
// durations and numbers may be quoted.
func assign(field reflect.Value, value any) error {
	if s, ok := value.(string); ok {
		return parseInto(field, s)
	}

	switch field.Kind() {
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return typeError(field, value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, ok := value.(int64)
		if !ok {
			return typeError(field, value)
		}
		if field.Type() == durationType {
			n *= int64(time.Millisecond)
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, field.Type())
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		n, ok := value.(int64)
		if !ok || n < 0 || field.OverflowUint(uint64(n)) {
			return typeError(field, value)
		}
		field.SetUint(uint64(n))
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return typeError(field, value)
		}
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return typeError(field, value)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return typeError(field, value)
			}
			out = append(out, s)
		}
		field.Set(reflect.ValueOf(out))
	default:
		return typeError(field, value)
	}
	return nil
}

// parseInto parses raw into field. Durations accept Go syntax ("1500ms") or
// a bare number of milliseconds; string slices are comma separated.
func parseInto(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			ms, msErr := strconv.ParseInt(raw, 10, 64)
			if msErr != nil {
				return fmt.Errorf("invalid duration %q", raw)
			}
			d = time.Duration(ms) * time.Millisecond
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid bool %q", raw)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", raw)
		}
		field.SetUint(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported field type %s", field.Type())
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

func typeError(field reflect.Value, value any) error {
	return fmt.Errorf("cannot use %T value %v as %s", value, value, field.Type())
}
