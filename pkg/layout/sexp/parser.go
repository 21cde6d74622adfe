// Package sexp is a small streaming S-expression reader used for layout
// files and KiCad board imports.
package sexp

import (
	"fmt"
	"io"
	"strings"
)

// Node is either an atom or a list.
type Node struct {
	Atom   string
	Quoted bool // Atom came from a quoted string
	List   []*Node
	IsList bool
	Line   int
}

// Parse reads all top-level expressions.
func Parse(r io.Reader) ([]*Node, error) {
	p := &parser{lexer: NewLexer(r)}
	return p.parseAll()
}

// ParseString parses S-expressions from a string
func ParseString(s string) ([]*Node, error) {
	return Parse(strings.NewReader(s))
}

type parser struct {
	lexer   *Lexer
	current Token
}

func (p *parser) next() error {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *parser) parseAll() ([]*Node, error) {
	var out []*Node
	if err := p.next(); err != nil {
		return nil, err
	}
	for p.current.Type != TokenEOF {
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *parser) parseExpr() (*Node, error) {
	switch p.current.Type {
	case TokenLeftParen:
		return p.parseList()
	case TokenSymbol:
		return &Node{Atom: p.current.Value, Line: p.current.Line}, nil
	case TokenString:
		return &Node{Atom: p.current.Value, Quoted: true, Line: p.current.Line}, nil
	default:
		return nil, fmt.Errorf("line %d: unexpected %s", p.current.Line, p.current.Type)
	}
}

func (p *parser) parseList() (*Node, error) {
	n := &Node{IsList: true, Line: p.current.Line}
	for {
		if err := p.next(); err != nil {
			return nil, err
		}
		switch p.current.Type {
		case TokenRightParen:
			return n, nil
		case TokenEOF:
			return nil, fmt.Errorf("line %d: unexpected EOF in list opened on line %d", p.current.Line, n.Line)
		}
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.List = append(n.List, elem)
	}
}
