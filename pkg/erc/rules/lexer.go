package rules

import "github.com/alecthomas/participle/v2/lexer"

// Lexer tokenises rule battery files. Keywords are matched as Key tokens.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Key", Pattern: `[a-zA-Z][a-zA-Z0-9_]*(?:\.[a-zA-Z][a-zA-Z0-9_]*)*`},
	{Name: "Punct", Pattern: `[{}]`},
})
