package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaultsandbox/vsb-agent/internal/provider"
)

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindFloat
	kindDuration
	kindList
)

// settableKeys lists the static keys accepted by Set.
var settableKeys = map[string]valueKind{
	"providers":              kindList,
	"output":                 kindString,
	"log.level":              kindString,
	"log.format":             kindString,
	"log.file":               kindString,
	"timing.min_delay":       kindDuration,
	"timing.max_delay":       kindDuration,
	"timing.element_timeout": kindDuration,
	"timing.instant":         kindBool,
	"surface.seed":           kindInt,
	"surface.miss_rate":      kindFloat,
	"surface.fail_rate":      kindFloat,
	"screenshots.enabled":    kindBool,
	"screenshots.dir":        kindString,
	"history.enabled":        kindBool,
	"history.limit":          kindInt,
}

// Keys returns every settable key, with <provider> placeholders for the
// per-provider ones.
func Keys() []string {
	keys := make([]string, 0, len(settableKeys)+3)
	for k := range settableKeys {
		keys = append(keys, k)
	}
	keys = append(keys, "auth.<provider>", "accounts.<provider>.username", "accounts.<provider>.password")
	sort.Strings(keys)
	return keys
}

// File is the raw content of a config file, edited key by key so that
// unset keys keep following their defaults.
type File map[string]any

// ReadFile loads the YAML file at path. A missing file yields an empty File.
func ReadFile(path string) (File, error) {
	f := File{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if f == nil {
		f = File{}
	}
	return f, nil
}

// WriteFile writes f to path as YAML with owner-only permissions.
func WriteFile(path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(map[string]any(f))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// section returns v as a mapping. yaml.v3 decodes nested mappings as File
// when the target is a File, so both forms are accepted.
func section(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case File:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

// Get returns the value at a dotted key.
func (f File) Get(key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = f
	for _, part := range parts {
		m, ok := section(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Put stores value at a dotted key, creating intermediate sections.
func (f File) Put(key string, value any) {
	parts := strings.Split(key, ".")
	m := map[string]any(f)
	for _, part := range parts[:len(parts)-1] {
		next, ok := section(m[part])
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Set validates value for key and writes it into the config file at path.
func Set(path, key, value string) error {
	parsed, err := ParseValue(key, value)
	if err != nil {
		return err
	}
	f, err := ReadFile(path)
	if err != nil {
		return err
	}
	f.Put(strings.ToLower(key), parsed)
	return WriteFile(path, f)
}

// ParseValue converts the textual value for key into its typed form.
func ParseValue(key, value string) (any, error) {
	key = strings.ToLower(strings.TrimSpace(key))

	if name, ok := strings.CutPrefix(key, "auth."); ok && !strings.Contains(name, ".") && name != "" {
		p, err := provider.ParseAuthPolicy(value)
		if err != nil {
			return nil, err
		}
		return p.Name(), nil
	}
	if rest, ok := strings.CutPrefix(key, "accounts."); ok {
		name, field, found := strings.Cut(rest, ".")
		if found && name != "" && (field == "username" || field == "password") {
			return value, nil
		}
	}

	kind, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}

	switch kind {
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: expected true or false, got %q", key, value)
		}
		return b, nil
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s: expected an integer, got %q", key, value)
		}
		return n, nil
	case kindFloat:
		x, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: expected a number, got %q", key, value)
		}
		return x, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s: expected a duration like 500ms, got %q", key, value)
		}
		return d.String(), nil
	case kindList:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return value, nil
	}
}
