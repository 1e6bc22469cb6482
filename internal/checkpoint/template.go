// Package checkpoint understands the file names a trainer gives its
// checkpoints, e.g. `epoch{epoch:06d}` or `{epoch}-{val/loss:.4f}`, so a
// run can be pointed at the best or the last checkpoint of an earlier run.
package checkpoint

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Extension is the checkpoint file extension.
const Extension = ".ckpt"

var fieldPattern = regexp.MustCompile(`\{([^{}:]+)(?::([^{}]*))?\}`)

// spec is a parsed Python-style format spec: [0][width][.precision][type].
var specPattern = regexp.MustCompile(`^(0)?(\d+)?(?:\.(\d+))?([dfeEgG%]?)$`)

// Template is a parsed checkpoint file name template.
type Template struct {
	raw        string
	autoInsert bool
	parts      []segment
	re         *regexp.Regexp
	fields     []string
}

type segment struct {
	lit   string
	field *field
}

type field struct {
	name      string
	zero      bool
	width     int
	precision int // -1 when absent
	verb      byte
}

// ParseTemplate parses a file name template. With autoInsert every field is
// rendered as `name=value`, the way the trainer does when
// auto_insert_metric_name is on.
func ParseTemplate(raw string, autoInsert bool) (*Template, error) {
	if raw == "" {
		return nil, fmt.Errorf("checkpoint template cannot be empty")
	}
	t := &Template{raw: raw, autoInsert: autoInsert}

	var re strings.Builder
	re.WriteString("^")
	last := 0
	for _, m := range fieldPattern.FindAllStringSubmatchIndex(raw, -1) {
		if m[0] > last {
			lit := raw[last:m[0]]
			t.parts = append(t.parts, segment{lit: lit})
			re.WriteString(regexp.QuoteMeta(lit))
		}
		f, err := parseField(raw[m[2]:m[3]], specText(raw, m))
		if err != nil {
			return nil, fmt.Errorf("checkpoint template %q: %w", raw, err)
		}
		if autoInsert {
			t.parts = append(t.parts, segment{lit: f.name + "="})
			re.WriteString(regexp.QuoteMeta(f.name + "="))
		}
		t.parts = append(t.parts, segment{field: f})
		t.fields = append(t.fields, f.name)
		re.WriteString("(" + f.pattern() + ")")
		last = m[1]
	}
	if last < len(raw) {
		t.parts = append(t.parts, segment{lit: raw[last:]})
		re.WriteString(regexp.QuoteMeta(raw[last:]))
	}
	if strings.ContainsAny(fieldPattern.ReplaceAllString(raw, ""), "{}") {
		return nil, fmt.Errorf("checkpoint template %q has unbalanced braces", raw)
	}
	re.WriteString("$")

	compiled, err := regexp.Compile(re.String())
	if err != nil {
		return nil, fmt.Errorf("checkpoint template %q: %w", raw, err)
	}
	t.re = compiled
	return t, nil
}

func specText(raw string, m []int) string {
	if m[4] < 0 {
		return ""
	}
	return raw[m[4]:m[5]]
}

func parseField(name, spec string) (*field, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty field name")
	}
	f := &field{name: name, precision: -1}
	sm := specPattern.FindStringSubmatch(spec)
	if sm == nil {
		return nil, fmt.Errorf("unsupported format spec %q for '%s'", spec, name)
	}
	f.zero = sm[1] != ""
	if sm[2] != "" {
		f.width, _ = strconv.Atoi(sm[2])
	}
	if sm[3] != "" {
		f.precision, _ = strconv.Atoi(sm[3])
	}
	if sm[4] != "" {
		f.verb = sm[4][0]
	}
	if f.verb == 'd' && f.precision >= 0 {
		return nil, fmt.Errorf("precision not allowed with 'd' for '%s'", name)
	}
	return f, nil
}

func (f *field) pattern() string {
	if f.verb == 'd' {
		return ` *-?\d+`
	}
	return ` *[-+]?(?:\d+\.?\d*(?:[eE][-+]?\d+)?%?|nan|inf)`
}

func (f *field) format(v float64) (string, error) {
	var s string
	switch f.verb {
	case 'd':
		if v != math.Trunc(v) {
			return "", fmt.Errorf("'%s' needs an integer, got %v", f.name, v)
		}
		s = strconv.FormatInt(int64(v), 10)
	case 'f', 'e', 'E', 'g', 'G':
		prec := f.precision
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(v, f.verb, prec, 64)
	case '%':
		prec := f.precision
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(v*100, 'f', prec, 64) + "%"
	default:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			s = strconv.FormatInt(int64(v), 10)
		} else {
			s = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	if len(s) < f.width {
		pad := strings.Repeat(" ", f.width-len(s))
		if f.zero {
			pad = strings.Repeat("0", f.width-len(s))
			if strings.HasPrefix(s, "-") {
				return "-" + pad + s[1:], nil
			}
		}
		s = pad + s
	}
	return s, nil
}

// String returns the template as written.
func (t *Template) String() string {
	return t.raw
}

// Fields lists the metric names the template references, in order.
func (t *Template) Fields() []string {
	return append([]string(nil), t.fields...)
}

// HasField reports whether the template references name.
func (t *Template) HasField(name string) bool {
	for _, f := range t.fields {
		if f == name {
			return true
		}
	}
	return false
}

// Render formats a file name stem from metric values.
func (t *Template) Render(metrics map[string]float64) (string, error) {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.field == nil {
			sb.WriteString(p.lit)
			continue
		}
		v, ok := metrics[p.field.name]
		if !ok {
			return "", fmt.Errorf("checkpoint template %q: no value for '%s'", t.raw, p.field.name)
		}
		s, err := p.field.format(v)
		if err != nil {
			return "", fmt.Errorf("checkpoint template %q: %w", t.raw, err)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// Match parses a file name stem produced by the template back into metric
// values.
func (t *Template) Match(stem string) (map[string]float64, bool) {
	m := t.re.FindStringSubmatch(stem)
	if m == nil {
		return nil, false
	}
	out := make(map[string]float64, len(t.fields))
	for i, name := range t.fields {
		raw := strings.TrimSpace(m[i+1])
		text := strings.TrimSuffix(raw, "%")
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, false
		}
		if strings.HasSuffix(raw, "%") {
			v /= 100
		}
		out[name] = v
	}
	return out, true
}
