package person

import (
	"reflect"
	"sort"

	"github.com/meetprep/backend/internal/domain/shared"
)

// DiffMerge overlays incoming onto current and returns the merged document together with
// the sorted names of the fields whose value changed. Empty incoming values never erase
// existing ones. current is not modified.
func DiffMerge(current, incoming shared.Payload) (shared.Payload, []string) {
	merged := current.Clone()
	if merged == nil {
		merged = shared.Payload{}
	}
	var changed []string
	for k, v := range incoming {
		if isEmpty(v) {
			continue
		}
		if old, ok := merged[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		merged[k] = v
		changed = append(changed, k)
	}
	sort.Strings(changed)
	return merged, changed
}

// Rebuild replaces current with the non-empty fields of incoming and returns the new document
// together with the sorted names of the fields that were added, changed or removed. current
// is not modified.
func Rebuild(current, incoming shared.Payload) (shared.Payload, []string) {
	next := shared.Payload{}
	for k, v := range incoming {
		if !isEmpty(v) {
			next[k] = v
		}
	}
	var changed []string
	for k, v := range next {
		if old, ok := current[k]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range current {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return next, changed
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
