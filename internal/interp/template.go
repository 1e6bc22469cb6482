package interp

import (
	"regexp"
	"strings"

	"github.com/vk/trainlaunch/internal/config"
)

var resolverName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// template is a parsed string value: literal text interleaved with ${...}
// expressions.
type template []part

type part struct {
	lit  string
	expr *expr
}

// expr is the body of one ${...}. A reference has no resolver name; its key
// may itself contain interpolations.
type expr struct {
	resolver string
	key      template
	args     []template
	text     string
}

// hasInterpolation reports whether s needs the interpolation pass at all.
func hasInterpolation(s string) bool {
	return strings.Contains(s, "${")
}

// isSingle reports whether the template is exactly one expression, in which
// case the expression's value keeps its type.
func (t template) isSingle() bool {
	return len(t) == 1 && t[0].expr != nil
}

func parseTemplate(s string) (template, error) {
	var (
		out template
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, part{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], `\${`):
			lit.WriteString("${")
			i += 3
		case strings.HasPrefix(s[i:], "${"):
			end, err := closing(s, i+2)
			if err != nil {
				return nil, err
			}
			e, err := parseExpr(s[i+2 : end])
			if err != nil {
				return nil, err
			}
			flush()
			out = append(out, part{expr: e})
			i = end + 1
		default:
			lit.WriteByte(s[i])
			i++
		}
	}
	flush()
	return out, nil
}

// closing finds the brace that ends the expression opened just before start.
func closing(s string, start int) (int, error) {
	depth := 1
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, config.Errorf(config.ErrInterpolationUnresolved, "", "unterminated interpolation in %q", s)
}

func parseExpr(body string) (*expr, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return nil, config.Errorf(config.ErrInterpolationUnresolved, "", "empty interpolation ${}")
	}

	if name, rest, ok := splitResolver(text); ok {
		e := &expr{resolver: name, text: text}
		if strings.TrimSpace(rest) == "" {
			return e, nil
		}
		for _, raw := range splitArgs(rest) {
			arg, err := parseTemplate(unquote(strings.TrimSpace(raw)))
			if err != nil {
				return nil, err
			}
			e.args = append(e.args, arg)
		}
		return e, nil
	}

	key, err := parseTemplate(text)
	if err != nil {
		return nil, err
	}
	return &expr{key: key, text: text}, nil
}

// splitResolver splits `name:args` at the first colon outside nested
// interpolations.
func splitResolver(text string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ':':
			if depth == 0 {
				name := text[:i]
				return name, text[i+1:], resolverName.MatchString(name)
			}
		}
	}
	return "", "", false
}

// splitArgs splits resolver arguments on commas outside quotes and nested
// interpolations.
func splitArgs(s string) []string {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
