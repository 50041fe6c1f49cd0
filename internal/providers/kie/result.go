package kie

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ExtractResultURLs pulls result URLs out of a provider resultJson value.
// The value may be an object or a JSON string holding one. Known fields are
// tried first (resultUrls, then resultUrl or url); as a last resort every
// URL-shaped string anywhere in the document is collected.
func ExtractResultURLs(raw json.RawMessage) []string {
	doc := decodeResult(raw)
	if doc == nil {
		return nil
	}

	if obj, ok := doc.(map[string]any); ok {
		if list := stringList(obj["resultUrls"]); len(list) > 0 {
			return list
		}
		for _, key := range []string{"resultUrl", "url"} {
			if s, ok := obj[key].(string); ok && isURL(s) {
				return []string{strings.TrimSpace(s)}
			}
		}
	}

	var found []string
	seen := make(map[string]struct{})
	scanURLs(doc, seen, &found)
	return found
}

func decodeResult(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	// resultJson is usually a string containing JSON
	if s, ok := doc.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if isURL(s) {
			return map[string]any{"url": s}
		}
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil
		}
		return inner
	}
	return doc
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && isURL(s) {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func scanURLs(v any, seen map[string]struct{}, out *[]string) {
	switch node := v.(type) {
	case string:
		s := strings.TrimSpace(node)
		if !isURL(s) {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		*out = append(*out, s)
	case []any:
		for _, item := range node {
			scanURLs(item, seen, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			scanURLs(node[k], seen, out)
		}
	}
}

func isURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// parseProgress accepts an integer percentage, a fraction in [0,1] or a
// numeric string. Anything else reads as 0.
func parseProgress(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
	if err != nil {
		return 0
	}
	if strings.Contains(text, ".") && f > 0 && f <= 1 {
		f *= 100
	}
	p := int(math.Round(f))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
