package rules

import "github.com/alecthomas/participle/v2/lexer"

// File is a parsed rule battery.
type File struct {
	Statements []*Statement `@@*`
}

// Statement is one top level entry.
type Statement struct {
	Rule    *Rule    `  @@`
	Disable *Disable `| @@`
}

// Rule overrides an existing check, or defines a new one with "uses".
// Example: rule my.floating uses open_port { severity warning }
type Rule struct {
	Pos lexer.Position

	Key        string      `"rule" @Key`
	Base       string      `( "uses" @Key )?`
	Properties []*Property `"{" @@* "}"`
}

// Property is one setting inside a rule block.
type Property struct {
	Pos lexer.Position

	Severity    *string `  "severity" @Key`
	Description *string `| "description" @String`
	Disabled    bool    `| @"disabled"`
}

// Disable turns a check off.
// Example: disable net.undefined_port_direction
type Disable struct {
	Pos lexer.Position

	Key string `"disable" @Key`
}
