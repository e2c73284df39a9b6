package dynamotest

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// evaluator evaluates the subset of DynamoDB condition expressions the
// store emits: =, <>, IN, AND, OR, NOT, parentheses, attribute_exists and
// attribute_not_exists over top-level attribute names.
type evaluator struct {
	tokens []string
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
	item   map[string]types.AttributeValue
}

// Match reports whether item satisfies the condition expression.
// An empty expression matches every item.
func Match(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	tokens, err := tokenize(expr)
	if err != nil {
		return false, err
	}
	e := &evaluator{tokens: tokens, names: names, values: values, item: item}
	ok, err := e.or()
	if err != nil {
		return false, err
	}
	if e.pos != len(e.tokens) {
		return false, fmt.Errorf("dynamotest: unexpected %q in %q", e.tokens[e.pos], expr)
	}
	return ok, nil
}

func tokenize(expr string) ([]string, error) {
	var tokens []string
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')' || r == ',' || r == '=':
			tokens = append(tokens, string(r))
			i++
		case r == '<' && i+1 < len(runes) && runes[i+1] == '>':
			tokens = append(tokens, "<>")
			i += 2
		case r == '#' || r == ':' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i + 1
			for j < len(runes) && (runes[j] == '_' || runes[j] == '.' || unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("dynamotest: unsupported character %q in %q", r, expr)
		}
	}
	return tokens, nil
}

func (e *evaluator) peek() string {
	if e.pos < len(e.tokens) {
		return e.tokens[e.pos]
	}
	return ""
}

func (e *evaluator) next() string {
	t := e.peek()
	e.pos++
	return t
}

func (e *evaluator) expect(tok string) error {
	if got := e.next(); got != tok {
		return fmt.Errorf("dynamotest: expected %q, got %q", tok, got)
	}
	return nil
}

func (e *evaluator) or() (bool, error) {
	result, err := e.and()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(e.peek(), "OR") {
		e.next()
		rhs, err := e.and()
		if err != nil {
			return false, err
		}
		result = result || rhs
	}
	return result, nil
}

func (e *evaluator) and() (bool, error) {
	result, err := e.unary()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(e.peek(), "AND") {
		e.next()
		rhs, err := e.unary()
		if err != nil {
			return false, err
		}
		result = result && rhs
	}
	return result, nil
}

func (e *evaluator) unary() (bool, error) {
	if strings.EqualFold(e.peek(), "NOT") {
		e.next()
		v, err := e.unary()
		return !v, err
	}
	return e.primary()
}

func (e *evaluator) primary() (bool, error) {
	tok := e.peek()
	switch {
	case tok == "(":
		e.next()
		v, err := e.or()
		if err != nil {
			return false, err
		}
		return v, e.expect(")")
	case strings.EqualFold(tok, "attribute_exists"), strings.EqualFold(tok, "attribute_not_exists"):
		e.next()
		if err := e.expect("("); err != nil {
			return false, err
		}
		name, err := e.name(e.next())
		if err != nil {
			return false, err
		}
		if err := e.expect(")"); err != nil {
			return false, err
		}
		_, exists := e.item[name]
		if strings.EqualFold(tok, "attribute_exists") {
			return exists, nil
		}
		return !exists, nil
	}

	lhs, err := e.operand(e.next())
	if err != nil {
		return false, err
	}
	op := e.next()
	switch {
	case op == "=":
		rhs, err := e.operand(e.next())
		return lhs != "" && lhs == rhs, err
	case op == "<>":
		rhs, err := e.operand(e.next())
		return lhs != rhs, err
	case strings.EqualFold(op, "IN"):
		if err := e.expect("("); err != nil {
			return false, err
		}
		found := false
		for {
			rhs, err := e.operand(e.next())
			if err != nil {
				return false, err
			}
			if lhs != "" && lhs == rhs {
				found = true
			}
			if e.peek() == "," {
				e.next()
				continue
			}
			return found, e.expect(")")
		}
	default:
		return false, fmt.Errorf("dynamotest: unsupported operator %q", op)
	}
}

// name resolves a "#placeholder" or literal attribute name.
func (e *evaluator) name(tok string) (string, error) {
	if strings.HasPrefix(tok, "#") {
		n, ok := e.names[tok]
		if !ok {
			return "", fmt.Errorf("dynamotest: undefined name %s", tok)
		}
		return n, nil
	}
	if tok == "" {
		return "", fmt.Errorf("dynamotest: missing attribute name")
	}
	return tok, nil
}

// operand resolves a name or value token to a comparable string.
// Missing attributes resolve to "".
func (e *evaluator) operand(tok string) (string, error) {
	if strings.HasPrefix(tok, ":") {
		v, ok := e.values[tok]
		if !ok {
			return "", fmt.Errorf("dynamotest: undefined value %s", tok)
		}
		return scalar(v), nil
	}
	name, err := e.name(tok)
	if err != nil {
		return "", err
	}
	av, ok := e.item[name]
	if !ok {
		return "", nil
	}
	return scalar(av), nil
}

// scalar renders a scalar attribute value with its type tag.
func scalar(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberB:
		return "B:" + string(v.Value)
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprintf("BOOL:%t", v.Value)
	default:
		return fmt.Sprintf("%T", av)
	}
}
