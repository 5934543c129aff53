// Package toolcall turns raw model text into a command. Small models emit
// tool calls in several shapes, so interpretation is an ordered chain of
// independent matchers where the first match wins.
package toolcall

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/modeljson"
)

// Matcher reads a command from text or reports no match. Matchers never
// fail; anything unreadable is simply no match.
type Matcher func(text string) (command.Command, bool)

var (
	nativePattern    = regexp.MustCompile(`(?s)<\|tool_call_start\|>\s*\[?(.*?)\]?\s*<\|tool_call_end\|>`)
	bracketPattern   = regexp.MustCompile(`(?s)\[(\w+\(.*?\))\]`)
	callPattern      = regexp.MustCompile(`(?s)^(\w+)\((.*)\)$`)
	argPattern       = regexp.MustCompile(`(\w+)\s*=\s*("[^"]*"|'[^']*'|-?\d+(?:\.\d+)?|None|null|True|False|true|false)`)
	positionalString = regexp.MustCompile(`(?s)^\s*("[^"]*"|'[^']*')\s*$`)
	bareCallPattern  = regexp.MustCompile(barePattern())
)

func barePattern() string {
	names := make([]string, len(command.Names))
	for i, n := range command.Names {
		names[i] = regexp.QuoteMeta(string(n))
	}
	return `\b(` + strings.Join(names, "|") + `)\(([^)]*)\)`
}

// Interpreter applies its matchers in priority order.
type Interpreter struct {
	match Matcher
}

// NewInterpreter returns an interpreter over the default matcher chain:
// native tagged call, JSON object, bracketed call, bare call.
func NewInterpreter() *Interpreter {
	return &Interpreter{match: FirstMatch(MatchNative, MatchJSON, MatchBracketed, MatchBare)}
}

// NewInterpreterWith builds an interpreter over custom matchers.
func NewInterpreterWith(matchers ...Matcher) *Interpreter {
	return &Interpreter{match: FirstMatch(matchers...)}
}

// Interpret returns the command in text, or false when nothing matched.
func (i *Interpreter) Interpret(text string) (command.Command, bool) {
	return i.match(text)
}

// FirstMatch composes matchers; the first one that matches wins. A matcher
// that panics counts as no match.
func FirstMatch(matchers ...Matcher) Matcher {
	return func(text string) (command.Command, bool) {
		for _, m := range matchers {
			if cmd, ok := safely(m, text); ok {
				return cmd, true
			}
		}
		return nil, false
	}
}

func safely(m Matcher, text string) (cmd command.Command, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			cmd, ok = nil, false
		}
	}()
	return m(text)
}

// MatchNative reads <|tool_call_start|>[name(args)]<|tool_call_end|>.
func MatchNative(text string) (command.Command, bool) {
	m := nativePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return parseCall(m[1])
}

// MatchJSON reads {"name": ..., "params": {...}}. "parameters" and
// "arguments" are accepted as the params key.
func MatchJSON(text string) (command.Command, bool) {
	obj, ok := modeljson.Object(text)
	if !ok {
		return nil, false
	}
	name := modeljson.String(obj, "name")
	if name == "" {
		return nil, false
	}
	var params map[string]any
	for _, key := range []string{"params", "parameters", "arguments"} {
		if p, ok := obj[key].(map[string]any); ok {
			params = p
			break
		}
	}
	return build(name, params)
}

// MatchBracketed reads [name(args)] anywhere in text.
func MatchBracketed(text string) (command.Command, bool) {
	m := bracketPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return parseCall(m[1])
}

// MatchBare reads name(args) for a known tool anywhere in text.
func MatchBare(text string) (command.Command, bool) {
	m := bareCallPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return parseCall(m[0])
}

// parseCall reads name(k="v", n=3). A lone quoted positional argument binds
// to the tool's primary parameter.
func parseCall(raw string) (command.Command, bool) {
	m := callPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, false
	}
	name, args := m[1], m[2]

	params := map[string]any{}
	for _, am := range argPattern.FindAllStringSubmatch(args, -1) {
		if v, keep := literal(am[2]); keep {
			params[am[1]] = v
		}
	}
	if len(params) == 0 {
		if pm := positionalString.FindStringSubmatch(args); pm != nil {
			if key := command.PrimaryParam(command.Name(name)); key != "" {
				params[key] = unquote(pm[1])
			}
		}
	}
	return build(name, params)
}

func build(name string, params map[string]any) (command.Command, bool) {
	cmd, err := command.New(name, params)
	if err != nil {
		return nil, false
	}
	return cmd, true
}

// literal converts an argument literal. None and null are dropped.
func literal(s string) (any, bool) {
	switch s {
	case "None", "null":
		return nil, false
	case "True", "true":
		return true, true
	case "False", "false":
		return false, true
	}
	if strings.HasPrefix(s, `"`) || strings.HasPrefix(s, `'`) {
		return unquote(s), true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return s, true
}

func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}
