// Package marker detects completed experiment runs and decodes their
// completion metadata. A run is complete when it carries the structured
// completion marker, or (for legacy runs) a results summary file.
package marker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/optkit/expreg/internal/types"
)

const (
	// MarkerFile is written by the experiment runner on completion,
	// one key=value pair per line.
	MarkerFile = ".EXPERIMENT_COMPLETE"

	// SummaryFile is the legacy completion signal: old runs predate the
	// marker but always wrote a results summary.
	SummaryFile = "results_summary.json"

	// ConfigFile is the runner's structured configuration; fallback
	// metadata copies a few fields through when the marker is absent.
	ConfigFile = "config.json"
)

// CompletedAtKey is the marker key carrying the completion timestamp.
const CompletedAtKey = "completed_at"

// timestampLayouts are tried in order when decoding completed_at.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"20060102_150405",
}

// IsComplete reports whether dir holds a finished run. An otherwise
// populated directory without a marker or summary is not complete.
func IsComplete(dir string) bool {
	if fileExists(filepath.Join(dir, MarkerFile)) {
		return true
	}
	return fileExists(filepath.Join(dir, SummaryFile))
}

// ParseCompletionMetadata decodes the completion marker in dir, or
// synthesizes legacy fallback metadata when the marker is absent.
// Failures degrade to a warning and empty metadata, never an error.
func ParseCompletionMetadata(dir string) map[string]types.Value {
	markerPath := filepath.Join(dir, MarkerFile)
	data, err := os.ReadFile(markerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return legacyMetadata(dir)
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to read %s: %v\n", markerPath, err)
		return map[string]types.Value{}
	}

	meta := make(map[string]types.Value)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// First '=' delimits; the value may contain further '='.
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		meta[key] = coerce(key, value)
	}
	return meta
}

// coerce applies the fixed type-coercion order for marker values:
// completed_at as timestamp, then bool, integer, float, string.
func coerce(key, value string) types.Value {
	if key == CompletedAtKey {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return types.TimeValue(t)
			}
		}
		return types.StringValue(value)
	}
	if value == "true" {
		return types.BoolValue(true)
	}
	if value == "false" {
		return types.BoolValue(false)
	}
	if i, ok := parseIntegerLiteral(value); ok {
		return types.IntValue(i)
	}
	if strings.Contains(value, ".") {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return types.FloatValue(f)
		}
	}
	return types.StringValue(value)
}

// parseIntegerLiteral accepts strings that are entirely digits with an
// optional leading minus sign.
func parseIntegerLiteral(s string) (int64, bool) {
	digits := strings.TrimPrefix(s, "-")
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// legacyMetadata synthesizes metadata for runs that predate the marker:
// the directory modification time stands in for completed_at, and a few
// fields are copied through from the runner config when present.
func legacyMetadata(dir string) map[string]types.Value {
	meta := map[string]types.Value{
		"legacy": types.BoolValue(true),
	}

	if info, err := os.Stat(dir); err == nil {
		meta[CompletedAtKey] = types.TimeValue(info.ModTime())
	} else {
		meta[CompletedAtKey] = types.TimeValue(time.Now())
	}

	copyConfigFields(dir, meta)
	return meta
}

// copyConfigFields copies GN, domain_range and seed out of the runner
// config into the metadata, tolerating missing files and missing keys.
func copyConfigFields(dir string, meta map[string]types.Value) {
	configPath := filepath.Join(dir, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: malformed %s: %v\n", configPath, err)
		return
	}

	for _, key := range []string{"GN", "domain_range", "seed"} {
		field, ok := raw[key]
		if !ok {
			continue
		}
		var v types.Value
		if err := json.Unmarshal(field, &v); err != nil {
			continue
		}
		meta[key] = v
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
