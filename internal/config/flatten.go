package config

import (
	"maps"
	"slices"
	"strings"
)

// secretKeys are shown masked by `config list`.
var secretKeys = []string{"devserver.jwt_secret", "devserver.llm_api_key"}

func IsSecretKey(key string) bool {
	return slices.Contains(secretKeys, key)
}

// Flatten turns nested JSON objects into one level keyed by dotted paths:
// {"backend":{"base_url":"x"}} becomes {"backend.base_url":"x"}. Empty
// objects contribute nothing.
func Flatten(nested map[string]any) map[string]any {
	flat := make(map[string]any)
	var walk func(path []string, v any)
	walk = func(path []string, v any) {
		obj, ok := v.(map[string]any)
		if !ok {
			flat[strings.Join(path, ".")] = v
			return
		}
		for k, child := range obj {
			walk(append(path[:len(path):len(path)], k), child)
		}
	}
	for k, v := range nested {
		walk([]string{k}, v)
	}
	return flat
}

// Unflatten reverses Flatten. A dotted key that runs through a scalar
// replaces the scalar with an object.
func Unflatten(flat map[string]any) map[string]any {
	nested := make(map[string]any)
	for key, v := range flat {
		setPath(nested, strings.Split(key, "."), v)
	}
	return nested
}

func setPath(obj map[string]any, path []string, v any) {
	for _, part := range path[:len(path)-1] {
		child, ok := obj[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			obj[part] = child
		}
		obj = child
	}
	obj[path[len(path)-1]] = v
}

// MaskSecrets returns a copy of flat with non-empty secrets reduced to
// "***" and their last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := maps.Clone(flat)
	for _, k := range secretKeys {
		if s, ok := out[k].(string); ok && s != "" {
			out[k] = mask(s)
		}
	}
	return out
}

func mask(s string) string {
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}
