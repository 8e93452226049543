// Package identitytag encodes the dispatcher's internal 64-bit entity id as
// a reserved backend property so that an external rename on the backend side
// does not sever the link between the backend object and the store row that
// tracks its identity and audit trail.
package identitytag

import "strconv"

// PropertyKey is the reserved, well-known property name under which the
// encoded identity tag travels inside a backend's property map. Backends
// must never surface this key to end users; the combined-view builder
// strips it before presentation.
const PropertyKey = "catalogd.internal.identity-tag"

// Encode renders id as an injective base-36 string. Base-36 keeps the
// encoded tag short and free of characters that upset property-map
// serializers that quote on punctuation.
func Encode(id uint64) string {
	return strconv.FormatUint(id, 36)
}

// Decode reverses Encode. A malformed or empty string decodes to
// (0, false) rather than an error, so Extract reports a corrupted tag
// exactly as it reports an absent one and callers proceed as if there were
// no tag; nothing is logged for it.
func Decode(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(s, 36, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// InjectInto returns a new property map equal to props plus the reserved
// key bound to Encode(id). The input map is never mutated. If the key was
// already present, the injected value wins — callers only invoke this on
// the creation path, where the freshly allocated id is authoritative.
func InjectInto(props map[string]string, id uint64) map[string]string {
	out := make(map[string]string, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	out[PropertyKey] = Encode(id)
	return out
}

// Extract reads and decodes the reserved key from props, if present.
func Extract(props map[string]string) (uint64, bool) {
	v, ok := props[PropertyKey]
	if !ok {
		return 0, false
	}
	return Decode(v)
}

// Strip returns a copy of props with the reserved key removed. Used by the
// combined-view builder to keep the identity tag out of presented
// properties.
func Strip(props map[string]string) map[string]string {
	if _, ok := props[PropertyKey]; !ok {
		return props
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		if k == PropertyKey {
			continue
		}
		out[k] = v
	}
	return out
}
