// Package config loads the transfers engine's configuration: database
// path and size, OSM and routing-graph input paths, the timetable dump
// path, and the matching radii. Values are read from a JSON5-ish file
// (comments and trailing commas tolerated) rather than flags, since the
// engine itself takes no part in flag registration or CLI wiring.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Duration wraps time.Duration so config files can express durations as
// human strings ("5s", "10m") instead of raw nanosecond integers.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingComa = regexp.MustCompile(`,(\s*[}\]])`)
)

// stripJSON5 removes the subset of JSON5 syntax (// and /* */ comments,
// trailing commas) that plain encoding/json can't parse, leaving strict
// JSON behind.
func stripJSON5(raw []byte) []byte {
	raw = blockComment.ReplaceAll(raw, nil)
	raw = lineComment.ReplaceAll(raw, nil)
	raw = trailingComa.ReplaceAll(raw, []byte("$1"))
	return raw
}

// ParseConfigFile reads the JSON5 file at path into dst. flagName, if
// non-empty, names the CLI flag the caller used to obtain path and is
// included in the error message for a missing file.
func ParseConfigFile(path string, flagName string, dst interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if flagName != "" {
			return fmt.Errorf("Unable to read %s file %q: %v", flagName, path, err)
		}
		return fmt.Errorf("Unable to read file %q: %v", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(stripJSON5(raw)))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("Unable to parse file %q: %v", path, err)
	}
	return nil
}
