package docvalue

import (
	"strconv"
	"strings"
)

// Resolve walks a dotted path ("otros_medicos.1.nombres") through the
// document. Object segments index by key, integer segments index into
// arrays. Any missing key, out-of-range index, or attempt to descend
// into a scalar returns ok=false. Absence is a state, never an error.
func Resolve(doc Value, path string) (Value, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Null(), false
	}
	current := doc
	for _, segment := range strings.Split(path, ".") {
		switch current.Kind() {
		case KindObject:
			next, ok := current.Field(segment)
			if !ok {
				return Null(), false
			}
			current = next
		case KindArray:
			idx, err := strconv.Atoi(segment)
			if err != nil {
				return Null(), false
			}
			next, ok := current.Index(idx)
			if !ok {
				return Null(), false
			}
			current = next
		default:
			return Null(), false
		}
	}
	return current, true
}
