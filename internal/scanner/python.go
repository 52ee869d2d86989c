package scanner

import (
	"regexp"
	"strings"
)

// PythonExtractor finds def/async def units by indentation. Nested classes
// and methods get dot-joined qualified names (Class.method).
type PythonExtractor struct{}

var pyDefRe = regexp.MustCompile(`^(async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
var pyClassRe = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)`)

// pyScope is one enclosing class or def on the nesting stack.
type pyScope struct {
	name   string
	indent int
	class  bool
}

func (PythonExtractor) Extract(src string) ([]Function, []ParseError) {
	lines := strings.Split(src, "\n")
	var funcs []Function
	var perrs []ParseError
	var stack []pyScope

	pop := func(indent int) {
		for len(stack) > 0 && indent <= stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
		}
	}
	qualify := func(name string) (qualified, parent string) {
		var parts []string
		for _, s := range stack {
			parts = append(parts, s.name)
			if s.class {
				parent = s.name
			}
		}
		return strings.Join(append(parts, name), "."), parent
	}

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := indentOf(lines[i])

		if m := pyClassRe.FindStringSubmatch(trimmed); m != nil {
			pop(indent)
			stack = append(stack, pyScope{name: m[1], indent: indent, class: true})
			continue
		}

		m := pyDefRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		pop(indent)
		name := m[2]

		// The signature may span lines; it ends at a ':' outside brackets.
		sigEnd, signature, ok := pySignature(lines, i)
		if !ok {
			perrs = append(perrs, ParseError{
				Line:    i + 1,
				Message: "unterminated signature for def " + name,
			})
			// Skip just this def; scanning resumes on the next line.
			continue
		}

		// Body: every following line indented deeper than the def.
		end := sigEnd
		for j := sigEnd + 1; j < len(lines); j++ {
			t := strings.TrimSpace(lines[j])
			if t == "" {
				continue
			}
			if indentOf(lines[j]) <= indent {
				break
			}
			end = j
		}

		qualified, parent := qualify(name)
		funcs = append(funcs, Function{
			Name:          name,
			QualifiedName: qualified,
			Signature:     signature,
			Body:          strings.Join(lines[i:end+1], "\n"),
			StartLine:     i + 1,
			EndLine:       end + 1,
			Parent:        parent,
		})

		// Nested defs are units of their own; enter this def's scope.
		stack = append(stack, pyScope{name: name, indent: indent})
		i = sigEnd
	}
	return funcs, perrs
}

// pySignature joins the def header lines through the terminating ':'.
// Returns ok=false when no terminator is found nearby.
func pySignature(lines []string, start int) (end int, sig string, ok bool) {
	depth := 0
	var parts []string
	for j := start; j < len(lines) && j < start+50; j++ {
		line := lines[j]
		for k := 0; k < len(line); k++ {
			switch line[k] {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
			case ':':
				if depth == 0 {
					// Single-line defs keep only the header part before ':'.
					parts = append(parts, strings.TrimSpace(line[:k]))
					return j, strings.Join(parts, " "), true
				}
			}
		}
		parts = append(parts, strings.TrimSpace(line))
	}
	return start, "", false
}

// indentOf counts leading whitespace, a tab weighing as one column. Mixed
// files are rare enough that relative comparison still holds.
func indentOf(line string) int {
	n := 0
	for _, r := range line {
		if r == ' ' || r == '\t' {
			n++
			continue
		}
		break
	}
	return n
}
