// Package tagexpr compiles boolean tag filter strings such as
// "@foo & -@bar" or "(@a | @b) & -@c" into predicates over a tag set.
//
// Grammar, loosest binding first:
//
//	expr  := and (('|' | ';') and)*
//	and   := unary (('&' | ',') unary)*
//	unary := '-' unary | '(' expr ')' | '@' word
//
// Whitespace is insignificant. The empty string compiles to a formula
// that matches every tag set.
package tagexpr

import (
	"strings"

	"github.com/halvar/mdn/internal/apperr"
)

// Formula is a compiled tag filter.
type Formula struct {
	root node
}

// All matches every tag set; it is what the empty filter compiles to.
var All = Formula{}

// Match reports whether the tag set satisfies the formula.
func (f Formula) Match(tags []string) bool {
	if f.root == nil {
		return true
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return f.root.eval(set)
}

// Compile parses a filter string. Malformed input fails with
// *apperr.InvalidFilterError naming the offending token, before any
// evaluation happens.
func Compile(s string) (Formula, error) {
	if strings.TrimSpace(s) == "" {
		return All, nil
	}
	p := &parser{input: s}
	root, err := p.parseExpr()
	if err != nil {
		return Formula{}, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return Formula{}, &apperr.InvalidFilterError{Token: p.peek()}
	}
	return Formula{root: root}, nil
}

type node interface {
	eval(tags map[string]struct{}) bool
}

type tagNode string

func (n tagNode) eval(tags map[string]struct{}) bool {
	_, ok := tags[string(n)]
	return ok
}

type notNode struct{ child node }

func (n notNode) eval(tags map[string]struct{}) bool { return !n.child.eval(tags) }

type andNode struct{ children []node }

func (n andNode) eval(tags map[string]struct{}) bool {
	for _, c := range n.children {
		if !c.eval(tags) {
			return false
		}
	}
	return true
}

type orNode struct{ children []node }

func (n orNode) eval(tags map[string]struct{}) bool {
	for _, c := range n.children {
		if c.eval(tags) {
			return true
		}
	}
	return false
}

// parser is a tiny recursive-descent parser over the filter string.
// pos always sits on the next unconsumed byte.
type parser struct {
	input string
	pos   int
}

func (p *parser) parseExpr() (node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []node{first}
	for p.eatAny("|", ";") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return orNode{children: children}, nil
}

func (p *parser) parseAnd() (node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []node{first}
	for p.eatAny("&", ",") {
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return andNode{children: children}, nil
}

func (p *parser) parseUnary() (node, error) {
	p.skipSpace()
	switch {
	case p.eatAny("-"):
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil

	case p.eatAny("("):
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.eatAny(")") {
			return nil, &apperr.InvalidFilterError{Token: p.peek()}
		}
		return inner, nil

	default:
		return p.parseTag()
	}
}

func (p *parser) parseTag() (node, error) {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != '@' {
		return nil, &apperr.InvalidFilterError{Token: p.peek()}
	}
	start := p.pos
	p.pos++
	for p.pos < len(p.input) && isWordByte(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start+1 { // lone @
		return nil, &apperr.InvalidFilterError{Token: p.peek()}
	}
	return tagNode(p.input[start:p.pos]), nil
}

// eatAny consumes one of the given single-byte tokens if it is next.
func (p *parser) eatAny(tokens ...string) bool {
	p.skipSpace()
	for _, tok := range tokens {
		if strings.HasPrefix(p.input[p.pos:], tok) {
			p.pos += len(tok)
			return true
		}
	}
	return false
}

// peek returns the remaining input (trimmed, capped) for error messages,
// or "end of filter" when the input is exhausted.
func (p *parser) peek() string {
	p.skipSpace()
	rest := p.input[p.pos:]
	if rest == "" {
		return "end of filter"
	}
	if len(rest) > 20 {
		rest = rest[:20]
	}
	return rest
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		('0' <= b && b <= '9') ||
		('a' <= b && b <= 'z') ||
		('A' <= b && b <= 'Z')
}
