package rules

import (
	"fmt"
	"strconv"
)

type node interface{}

type (
	literalNode struct{ value any }
	identNode   struct{ name string }
	unaryNode   struct {
		op string
		x  node
	}
	binaryNode struct {
		op   string
		l, r node
	}
	logicalNode struct {
		and  bool
		l, r node
	}
	ternaryNode struct{ cond, then, els node }
	callNode    struct {
		name string
		args []node
	}
	memberNode struct {
		x    node
		name string
	}
	indexNode struct{ x, index node }
	arrayNode struct{ elems []node }
)

const (
	precLowest = iota
	precTernary
	precOr
	precAnd
	precCompare
	precAdd
	precMul
	precUnary
	precPower
	precPostfix
)

type parser struct {
	tokens []token
	pos    int
}

func parse(src string) (node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	n, err := p.expression(precLowest)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at %d", tok, tok.pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(op string) error {
	tok := p.next()
	if tok.kind != tokOp || tok.text != op {
		return fmt.Errorf("expected %q but found %s at %d", op, tok, tok.pos)
	}
	return nil
}

// infixPrec returns the binding power of the token as an infix operator.
func infixPrec(tok token) int {
	switch tok.kind {
	case tokIdent:
		switch tok.text {
		case "or":
			return precOr
		case "and":
			return precAnd
		}
	case tokOp:
		switch tok.text {
		case "?":
			return precTernary
		case "||":
			return precOr
		case "&&":
			return precAnd
		case "==", "!=", "<", "<=", ">", ">=":
			return precCompare
		case "+", "-":
			return precAdd
		case "*", "/", "%":
			return precMul
		case "^":
			return precPower
		case "(", "[", ".":
			return precPostfix
		}
	}
	return precLowest
}

func (p *parser) expression(prec int) (node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		tp := infixPrec(tok)
		if tp <= prec {
			return left, nil
		}
		p.next()
		switch {
		case tok.text == "?":
			then, err := p.expression(precLowest)
			if err != nil {
				return nil, err
			}
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			els, err := p.expression(precTernary - 1)
			if err != nil {
				return nil, err
			}
			left = &ternaryNode{cond: left, then: then, els: els}
		case tok.text == "or" || tok.text == "||" || tok.text == "and" || tok.text == "&&":
			right, err := p.expression(tp)
			if err != nil {
				return nil, err
			}
			left = &logicalNode{and: tok.text == "and" || tok.text == "&&", l: left, r: right}
		case tok.text == "^":
			right, err := p.expression(tp - 1)
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "^", l: left, r: right}
		case tok.text == "(":
			ident, ok := left.(*identNode)
			if !ok {
				return nil, fmt.Errorf("only named functions can be called at %d", tok.pos)
			}
			args, err := p.list(")")
			if err != nil {
				return nil, err
			}
			left = &callNode{name: ident.name, args: args}
		case tok.text == "[":
			idx, err := p.expression(precLowest)
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			left = &indexNode{x: left, index: idx}
		case tok.text == ".":
			name := p.next()
			if name.kind != tokIdent {
				return nil, fmt.Errorf("expected property name but found %s at %d", name, name.pos)
			}
			left = &memberNode{x: left, name: name.text}
		default:
			right, err := p.expression(tp)
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: tok.text, l: left, r: right}
		}
	}
}

func (p *parser) list(closing string) ([]node, error) {
	var items []node
	if tok := p.peek(); tok.kind == tokOp && tok.text == closing {
		p.next()
		return items, nil
	}
	for {
		item, err := p.expression(precLowest)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		tok := p.next()
		if tok.kind == tokOp && tok.text == closing {
			return items, nil
		}
		if tok.kind != tokOp || tok.text != "," {
			return nil, fmt.Errorf("expected ',' or %q but found %s at %d", closing, tok, tok.pos)
		}
	}
}

func (p *parser) prefix() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at %d", tok.text, tok.pos)
		}
		return &literalNode{value: f}, nil
	case tokString:
		return &literalNode{value: tok.text}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null":
			return &literalNode{value: nil}, nil
		case "undefined":
			return &literalNode{value: Undefined}, nil
		case "not":
			x, err := p.expression(precUnary)
			if err != nil {
				return nil, err
			}
			return &unaryNode{op: "!", x: x}, nil
		}
		return &identNode{name: tok.text}, nil
	case tokOp:
		switch tok.text {
		case "(":
			x, err := p.expression(precLowest)
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			elems, err := p.list("]")
			if err != nil {
				return nil, err
			}
			return &arrayNode{elems: elems}, nil
		case "-", "+", "!":
			x, err := p.expression(precUnary)
			if err != nil {
				return nil, err
			}
			return &unaryNode{op: tok.text, x: x}, nil
		}
	}
	return nil, fmt.Errorf("unexpected %s at %d", tok, tok.pos)
}
