package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// formatOf picks the decoder from the file extension. Anything that is not
// .yaml/.yml is treated as JSON.
func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// decodeConfig strictly decodes a config file. YAML goes through JSON so
// both formats share one set of struct tags and reject unknown keys the
// same way.
func decodeConfig(path string, data []byte) (*Config, error) {
	format := formatOf(path)
	if format == "yaml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		if doc == nil {
			// empty file; let Validate report what is missing
			doc = map[string]any{}
		}
		j, err := json.Marshal(stringKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
		data = j
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// stringKeys rewrites map[any]any nodes (YAML allows non-string keys) so
// the tree can be marshalled as JSON.
func stringKeys(v any) any {
	switch n := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, val := range n {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range n {
			n[k] = stringKeys(val)
		}
		return n
	case []any:
		for i, val := range n {
			n[i] = stringKeys(val)
		}
		return n
	}
	return v
}

// ParseDurationField parses a Go duration string. A bare integer is read as
// seconds. Empty means zero; negative values are rejected. path names the
// field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var d time.Duration
	if n, err := strconv.Atoi(s); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
