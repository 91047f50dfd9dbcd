package oempro

import (
	"net/url"
	"strconv"
	"strings"
)

// stripSlashesValues returns a copy of params with one level of backslash
// escaping removed from every value.
func stripSlashesValues(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for k, vs := range params {
		stripped := make([]string, 0, len(vs))
		for _, v := range vs {
			stripped = append(stripped, stripSlashes(v))
		}
		out[k] = stripped
	}
	return out
}

// stripSlashes un-quotes a backslash-escaped string: `\x` becomes `x`,
// `\0` becomes a NUL byte and a trailing lone backslash is dropped.
func stripSlashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			break
		}
		if s[i] == '0' {
			b.WriteByte(0)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func joinIDs(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
