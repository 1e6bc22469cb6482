package override

import (
	"math"
	"strings"

	"github.com/vk/trainlaunch/internal/config"
)

// SweepKind tells how a sweep was written.
type SweepKind int

const (
	SweepList   SweepKind = iota // a,b,c
	SweepChoice                  // choice(a,b,c)
	SweepRange                   // range(start,stop[,step])
)

// maxRangeLen bounds range() expansion.
const maxRangeLen = 10000

// Sweep holds the alternatives of a swept value. Raws keep the text of each
// alternative for job override listings.
type Sweep struct {
	Kind   SweepKind
	Text   string
	Values []any
	Raws   []string
}

// Len returns the number of alternatives.
func (s *Sweep) Len() int {
	return len(s.Values)
}

// ParseSweep reports the alternatives of raw, or nil when raw is a single
// value. Duplicate alternatives are dropped, keeping the first occurrence.
func ParseSweep(raw string) (*Sweep, error) {
	text := strings.TrimSpace(raw)
	var (
		s   *Sweep
		err error
	)
	if inner, ok := call(text, "choice"); ok {
		var parts []string
		if parts, err = splitTopLevel(inner); err != nil {
			return nil, err
		}
		s, err = listSweep(SweepChoice, parts)
	} else if inner, ok := call(text, "range"); ok {
		s, err = rangeSweep(inner)
	} else {
		var parts []string
		if parts, err = splitTopLevel(raw); err != nil {
			return nil, err
		}
		if len(parts) < 2 {
			return nil, nil
		}
		s, err = listSweep(SweepList, parts)
	}
	if err != nil {
		return nil, err
	}
	s.Text = text
	return s, nil
}

// unescapeCommas resolves `\,` escapes in a value that is not a sweep.
func unescapeCommas(raw string) string {
	parts, err := splitTopLevel(raw)
	if err != nil || len(parts) != 1 {
		return raw
	}
	return parts[0]
}

func call(text, name string) (string, bool) {
	if !strings.HasPrefix(text, name+"(") || !strings.HasSuffix(text, ")") {
		return "", false
	}
	return text[len(name)+1 : len(text)-1], true
}

func listSweep(kind SweepKind, parts []string) (*Sweep, error) {
	s := &Sweep{Kind: kind}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := ParseValue(p)
		if err != nil {
			return nil, err
		}
		s.add(v, p)
	}
	return s, nil
}

func (s *Sweep) add(v any, raw string) {
	for _, existing := range s.Values {
		if config.ValueEqual(existing, v) {
			return
		}
	}
	s.Values = append(s.Values, v)
	s.Raws = append(s.Raws, raw)
}

func rangeSweep(inner string) (*Sweep, error) {
	parts, err := splitTopLevel(inner)
	if err != nil {
		return nil, err
	}
	if len(parts) < 2 || len(parts) > 3 {
		return nil, config.Errorf(config.ErrInvalidLiteral, "", "range expects (start, stop[, step]), got %d arguments", len(parts))
	}

	nums := make([]float64, 0, 3)
	allInts := true
	for _, p := range parts {
		v, err := ParseValue(p)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int64:
			nums = append(nums, float64(n))
		case float64:
			allInts = false
			nums = append(nums, n)
		default:
			return nil, config.Errorf(config.ErrInvalidLiteral, "", "range argument %q is not a number", strings.TrimSpace(p))
		}
	}
	start, stop, step := nums[0], nums[1], 1.0
	if len(nums) == 3 {
		step = nums[2]
	}
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, config.Errorf(config.ErrInvalidLiteral, "", "range step must be a finite non-zero number")
	}

	s := &Sweep{Kind: SweepRange}
	for i := 0; ; i++ {
		x := start + float64(i)*step
		if (step > 0 && x >= stop) || (step < 0 && x <= stop) {
			break
		}
		if i >= maxRangeLen {
			return nil, config.Errorf(config.ErrInvalidLiteral, "", "range yields more than %d values", maxRangeLen)
		}
		var v any = x
		if allInts {
			v = int64(x)
		}
		text, _ := config.FormatScalar(v)
		s.add(v, text)
	}
	if len(s.Values) == 0 {
		return nil, config.Errorf(config.ErrInvalidLiteral, "", "range(%s) is empty", inner)
	}
	return s, nil
}

// splitTopLevel splits on commas that are outside quotes and brackets. A
// backslash escapes a comma.
func splitTopLevel(s string) ([]string, error) {
	var (
		parts []string
		cur   strings.Builder
		depth int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			cur.WriteByte(c)
			if c == '\\' && quote == '"' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\\':
			if i+1 < len(s) && s[i+1] == ',' {
				i++
				cur.WriteByte(',')
				continue
			}
			cur.WriteByte(c)
		case '"', '\'':
			quote = c
			cur.WriteByte(c)
		case '[', '{', '(':
			depth++
			cur.WriteByte(c)
		case ']', '}', ')':
			depth--
			if depth < 0 {
				return nil, config.Errorf(config.ErrInvalidLiteral, "", "unbalanced '%c' in %s", c, s)
			}
			cur.WriteByte(c)
		case ',':
			if depth == 0 {
				parts = append(parts, cur.String())
				cur.Reset()
				continue
			}
			cur.WriteByte(c)
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, config.Errorf(config.ErrInvalidLiteral, "", "unterminated quote in %s", s)
	}
	if depth != 0 {
		return nil, config.Errorf(config.ErrInvalidLiteral, "", "unbalanced brackets in %s", s)
	}
	return append(parts, cur.String()), nil
}

// String renders the sweep the way it was written on the command line.
func (s *Sweep) String() string {
	return s.Text
}
