package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// suggestDistance is the largest edit distance still offered as a
// "did you mean" suggestion.
const suggestDistance = 3

// knownKeys lists every key Config decodes, read from its toml tags.
var knownKeys = tomlKeys(reflect.TypeFor[Config]())

func tomlKeys(t reflect.Type) []string {
	var keys []string

	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous {
			keys = append(keys, tomlKeys(f.Type)...)
			continue
		}

		if tag, _, _ := strings.Cut(f.Tag.Get("toml"), ","); tag != "" && tag != "-" {
			keys = append(keys, tag)
		}
	}

	slices.Sort(keys)

	return keys
}

// checkUnknownKeys rejects every key the decoder did not use. A table is
// reported once by its name; when the keys inside it are valid the error
// says so, since the file is flat.
func checkUnknownKeys(md *toml.MetaData) error {
	var (
		errs  []error
		names []string
	)

	// A known setting found inside each unknown table, if any.
	misplaced := make(map[string]string)

	for _, key := range md.Undecoded() {
		name := key[0]
		if !slices.Contains(names, name) {
			names = append(names, name)
		}

		if leaf := key[len(key)-1]; len(key) > 1 && misplaced[name] == "" && slices.Contains(knownKeys, leaf) {
			misplaced[name] = leaf
		}
	}

	for _, name := range names {
		switch {
		case misplaced[name] != "":
			errs = append(errs, fmt.Errorf(
				"unknown config table [%s]: settings such as %q belong at the top level", name, misplaced[name]))
		case suggestKey(name) != "":
			errs = append(errs, fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestKey(name)))
		default:
			errs = append(errs, fmt.Errorf("unknown config key %q", name))
		}
	}

	return errors.Join(errs...)
}

// suggestKey returns the known key nearest to name, or "" when none is
// close enough. Ties go to the alphabetically first key.
func suggestKey(name string) string {
	best, bestDist := "", suggestDistance+1

	for _, k := range knownKeys {
		if d := editDistance(name, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// editDistance is the Levenshtein distance between a and b, in runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}

	for i := range ra {
		diag := row[0]
		row[0] = i + 1

		for j := range rb {
			sub := diag
			if ra[i] != rb[j] {
				sub++
			}

			diag = row[j+1]
			row[j+1] = min(row[j+1]+1, row[j]+1, sub)
		}
	}

	return row[len(rb)]
}
