package carrier

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	octetPattern = regexp.MustCompile(`%[a-fA-F0-9]{2}`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeKey keeps ASCII letters, digits, underscores and dashes.
func SanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, key)
}

// SanitizeText strips markup, percent-encoded octets, control characters and
// redundant whitespace from a single-line text value.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	for octetPattern.MatchString(s) {
		s = octetPattern.ReplaceAllString(s, "")
	}
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Sanitize cleans every key and value of data, descending into nested maps and
// slices. Scalars become strings.
func Sanitize(data map[string]any) map[string]any {
	clean := make(map[string]any, len(data))
	for k, v := range data {
		clean[SanitizeKey(k)] = sanitizeValue(v)
	}
	return clean
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Sanitize(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = sanitizeValue(t[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Sanitize(t[i])
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = SanitizeText(t[i])
		}
		return out
	case nil:
		return ""
	case string:
		return SanitizeText(t)
	case bool:
		if t {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return SanitizeText(t.String())
	}
	return SanitizeText(fmt.Sprint(v))
}

// encodeQuery flattens already sanitized data into a query string, writing
// nested values as parent[child]=value.
func encodeQuery(data map[string]any) string {
	vals := url.Values{}
	flatten(vals, "", data)
	return vals.Encode()
}

func flatten(vals url.Values, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(vals, joinKey(prefix, k), t[k])
		}
	case []any:
		for i := range t {
			flatten(vals, joinKey(prefix, strconv.Itoa(i)), t[i])
		}
	default:
		vals.Add(prefix, fmt.Sprint(t))
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "[" + key + "]"
}
