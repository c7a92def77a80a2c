// Package fieldpath extracts nested values from the JSON documents returned by the vehicle data
// API.
//
// Paths use "/" as a separator and each segment names a map key; there is no array indexing and
// no wildcard support. Intermediate segments must resolve to truthy values: JSON null, false,
// zero, the empty string, and empty containers are treated as dead ends. The final segment's
// value is returned as-is, even when falsy. This mirrors how the upstream API models "no data" at
// intermediate levels of a response while keeping legitimate zero readings (an odometer at 0 km,
// a battery at 0%) addressable.
package fieldpath

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Separator splits a field path into segments.
const Separator = "/"

// gjson treats these as path syntax; segments must always be literal keys.
const pathMetaChars = `.*?\|@#`

// Get returns the value addressed by path within doc. The zero gjson.Result (for which
// Exists() reports false and Value() returns nil) signals absence: an empty path, an absent
// document, a missing key, a falsy intermediate value, or a lookup on a non-object document all
// yield it.
func Get(path string, doc gjson.Result) gjson.Result {
	if path == "" || !doc.Exists() {
		return gjson.Result{}
	}
	segments := strings.Split(path, Separator)
	current := doc
	for i, segment := range segments {
		value := current.Get(escape(segment))
		if i == len(segments)-1 {
			return value
		}
		if !truthy(value) {
			return gjson.Result{}
		}
		current = value
	}
	return current
}

// GetBytes is Get over a raw JSON document. A nil document yields absence.
func GetBytes(path string, data []byte) gjson.Result {
	if len(data) == 0 {
		return gjson.Result{}
	}
	return Get(path, gjson.ParseBytes(data))
}

// truthy reports whether value may be descended through on the way to a deeper segment.
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return value.Num != 0
	case gjson.String:
		return value.Str != ""
	case gjson.JSON:
		empty := true
		value.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		return !empty
	}
	// Null, False, or nonexistent.
	return false
}

// escape backslash-quotes gjson path syntax so a segment always addresses a literal key.
func escape(segment string) string {
	if !strings.ContainsAny(segment, pathMetaChars) {
		return segment
	}
	var quoted strings.Builder
	for _, r := range segment {
		if strings.ContainsRune(pathMetaChars, r) {
			quoted.WriteByte('\\')
		}
		quoted.WriteRune(r)
	}
	return quoted.String()
}
