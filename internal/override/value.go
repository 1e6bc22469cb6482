package override

import (
	"math"
	"math/big"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// ParseValue converts the text of an override value into a config value.
func ParseValue(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", nil
	}

	structured := strings.ContainsAny(text[:1], `[{"'`)
	if !structured && strings.Contains(text, "${") {
		return text, nil
	}
	if text[0] == '\'' {
		if len(text) < 2 || text[len(text)-1] != '\'' {
			return nil, config.Errorf(config.ErrInvalidLiteral, "", "unterminated quote in %s", text)
		}
		if !strings.Contains(text[1:len(text)-1], "'") {
			return text[1 : len(text)-1], nil
		}
	}

	src, err := requote(text)
	if err != nil {
		return nil, err
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "override", hcl.InitialPos)
	if diags.HasErrors() {
		if structured {
			return nil, &config.Error{Kind: config.ErrInvalidLiteral, Detail: text, Err: diags}
		}
		return text, nil
	}

	v, ok, err := literal(expr, []byte(src))
	if err != nil {
		return nil, &config.Error{Kind: config.ErrInvalidLiteral, Detail: text, Err: err}
	}
	if !ok {
		if structured {
			return nil, config.Errorf(config.ErrInvalidLiteral, "", "%s is not a literal value", text)
		}
		return text, nil
	}
	return v, nil
}

// literal evaluates the subset of HCL expressions that denote plain data. It
// returns ok=false for anything else, e.g. arithmetic or function calls.
func literal(expr hclsyntax.Expression, src []byte) (any, bool, error) {
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		return fromCty(e.Val, sourceText(src, e.Range()))

	case *hclsyntax.UnaryOpExpr:
		if e.Op != hclsyntax.OpNegate {
			return nil, false, nil
		}
		v, ok, err := literal(e.Val, src)
		if err != nil || !ok {
			return nil, ok, err
		}
		switch n := v.(type) {
		case int64:
			return -n, true, nil
		case float64:
			return -n, true, nil
		}
		return nil, false, nil

	case *hclsyntax.ScopeTraversalExpr:
		if len(e.Traversal) != 1 {
			return string(sourceText(src, e.Range())), true, nil
		}
		name := e.Traversal.RootName()
		switch strings.ToLower(name) {
		case "true":
			return true, true, nil
		case "false":
			return false, true, nil
		case "null":
			return nil, true, nil
		case "inf":
			return math.Inf(1), true, nil
		case "nan":
			return math.NaN(), true, nil
		}
		return name, true, nil

	case *hclsyntax.TemplateWrapExpr:
		return quotedText(e.Range(), src), true, nil

	case *hclsyntax.TemplateExpr:
		var sb strings.Builder
		for _, part := range e.Parts {
			lit, isLit := part.(*hclsyntax.LiteralValueExpr)
			if !isLit || lit.Val.Type() != cty.String {
				return quotedText(e.Range(), src), true, nil
			}
			sb.WriteString(lit.Val.AsString())
		}
		return sb.String(), true, nil

	case *hclsyntax.TupleConsExpr:
		list := make([]any, 0, len(e.Exprs))
		for _, item := range e.Exprs {
			v, ok, err := literal(item, src)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			list = append(list, v)
		}
		return list, true, nil

	case *hclsyntax.ObjectConsExpr:
		node := config.NewNode()
		for _, item := range e.Items {
			key, err := objectKey(item.KeyExpr, src)
			if err != nil {
				return nil, false, err
			}
			v, ok, err := literal(item.ValueExpr, src)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			node.Set(key, v)
		}
		return node, true, nil
	}
	return nil, false, nil
}

func objectKey(expr hclsyntax.Expression, src []byte) (string, error) {
	if wrapped, ok := expr.(*hclsyntax.ObjectConsKeyExpr); ok {
		expr = wrapped.Wrapped
	}
	v, ok, err := literal(expr, src)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", config.Errorf(config.ErrInvalidLiteral, "", "map key %s is not a literal", sourceText(src, expr.Range()))
	}
	s, err := config.FormatScalar(v)
	if err != nil {
		return "", config.Errorf(config.ErrInvalidLiteral, "", "map key must be a scalar, got %s", config.KindName(v))
	}
	return s, nil
}

func fromCty(v cty.Value, text []byte) (any, bool, error) {
	if v.IsNull() {
		return nil, true, nil
	}
	switch v.Type() {
	case cty.Bool:
		return v.True(), true, nil
	case cty.String:
		return v.AsString(), true, nil
	case cty.Number:
		bf := v.AsBigFloat()
		if !strings.ContainsAny(string(text), ".eE") && bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, true, nil
			}
		}
		f, _ := bf.Float64()
		return f, true, nil
	}
	return nil, false, nil
}

func sourceText(src []byte, rng hcl.Range) []byte {
	if rng.Start.Byte < 0 || rng.End.Byte > len(src) || rng.Start.Byte > rng.End.Byte {
		return nil
	}
	return src[rng.Start.Byte:rng.End.Byte]
}

// quotedText returns the body of a quoted template verbatim so `${...}`
// references inside it survive for the interpolation pass.
func quotedText(rng hcl.Range, src []byte) string {
	s := string(sourceText(src, rng))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// requote rewrites single-quoted strings as double-quoted HCL strings.
func requote(text string) (string, error) {
	if !strings.Contains(text, "'") {
		return text, nil
	}
	var sb strings.Builder
	inDouble, inSingle := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inSingle:
			switch c {
			case '\'':
				inSingle = false
				sb.WriteByte('"')
			case '"', '\\':
				sb.WriteByte('\\')
				sb.WriteByte(c)
			default:
				sb.WriteByte(c)
			}
		case inDouble:
			sb.WriteByte(c)
			if c == '\\' && i+1 < len(text) {
				i++
				sb.WriteByte(text[i])
			} else if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
			sb.WriteByte('"')
		case c == '"':
			inDouble = true
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	if inSingle || inDouble {
		return "", config.Errorf(config.ErrInvalidLiteral, "", "unterminated quote in %s", text)
	}
	return sb.String(), nil
}
