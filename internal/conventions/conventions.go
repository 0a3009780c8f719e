// Package conventions defines the rules for route patterns: how
// placeholders are written and how a pattern expands into a concrete path.
//
// Patterns use chi syntax. A placeholder is {name} or {name:regexp}; a
// trailing * matches the rest of the path and is filled from the "*" param.
package conventions

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// PatternParams returns the placeholder names in pattern, in order. A
// trailing wildcard is reported as "*".
//
// Examples:
//
//	"/"                      → []
//	"/users/{id}"            → ["id"]
//	"/org/{org}/files/*"     → ["org", "*"]
//	"/posts/{slug:[a-z-]+}"  → ["slug"]
func PatternParams(pattern string) []string {
	var names []string
	for _, seg := range splitPattern(pattern) {
		switch {
		case seg.wildcard:
			names = append(names, "*")
		case seg.param != "":
			names = append(names, seg.param)
		}
	}
	return names
}

// ExpandPattern substitutes params into pattern. Every placeholder must have
// a value, and values must match the placeholder's regexp when one is given.
// Values are escaped as path segments; the wildcard value is escaped per
// segment so it may contain slashes.
func ExpandPattern(pattern string, params map[string]string) (string, error) {
	if !strings.HasPrefix(pattern, "/") {
		return "", fmt.Errorf("pattern %q must start with /", pattern)
	}
	var b strings.Builder
	for _, seg := range splitPattern(pattern) {
		switch {
		case seg.wildcard:
			v := params["*"]
			parts := strings.Split(v, "/")
			for i, p := range parts {
				parts[i] = url.PathEscape(p)
			}
			b.WriteString(strings.Join(parts, "/"))
		case seg.param != "":
			v, ok := params[seg.param]
			if !ok {
				return "", fmt.Errorf("pattern %q: missing param %q", pattern, seg.param)
			}
			if seg.regexp != "" {
				re, err := regexp.Compile("^(?:" + seg.regexp + ")$")
				if err != nil {
					return "", fmt.Errorf("pattern %q: param %q: %w", pattern, seg.param, err)
				}
				if !re.MatchString(v) {
					return "", fmt.Errorf("pattern %q: param %q value %q does not match %s", pattern, seg.param, v, seg.regexp)
				}
			}
			b.WriteString(url.PathEscape(v))
		default:
			b.WriteString(seg.literal)
		}
	}
	return b.String(), nil
}

type segment struct {
	literal  string
	param    string
	regexp   string
	wildcard bool
}

// splitPattern breaks a pattern into literal text, placeholders and a
// trailing wildcard. Braces inside a placeholder's regexp are balanced.
func splitPattern(pattern string) []segment {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '{':
			depth := 1
			j := i + 1
			for ; j < len(pattern) && depth > 0; j++ {
				switch pattern[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
			}
			if depth != 0 {
				lit.WriteString(pattern[i:])
				i = len(pattern)
				continue
			}
			flush()
			inner := pattern[i+1 : j-1]
			name, re, _ := strings.Cut(inner, ":")
			segs = append(segs, segment{param: name, regexp: re})
			i = j - 1
		case c == '*' && i == len(pattern)-1:
			flush()
			segs = append(segs, segment{wildcard: true})
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs
}
