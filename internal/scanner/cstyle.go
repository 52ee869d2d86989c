package scanner

import (
	"regexp"
	"strings"
)

// CStyleExtractor handles brace-delimited languages. Language selects the
// header patterns: "go" matches func declarations (with receivers),
// "javascript" matches function declarations, class methods and arrow
// function assignments.
type CStyleExtractor struct {
	Language string
}

var (
	goFuncRe = regexp.MustCompile(`^func\s+(?:\(\s*\w+\s+\*?([A-Za-z_][A-Za-z0-9_]*)\s*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*(?:\[[^\]]*\])?\(`)

	jsFuncRe   = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	jsArrowRe  = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][A-Za-z0-9_$]*)\s*=>`)
	jsMethodRe = regexp.MustCompile(`^(?:async\s+)?(?:static\s+)?\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*\([^;=]*\)\s*\{`)
	jsClassRe  = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

	jsKeywords = map[string]bool{
		"if": true, "for": true, "while": true, "switch": true, "catch": true,
		"return": true, "function": true, "constructor": false, "do": true,
	}
)

func (e CStyleExtractor) Extract(src string) ([]Function, []ParseError) {
	lines := strings.Split(src, "\n")
	var funcs []Function
	var perrs []ParseError

	// Track the enclosing JS class by brace depth so methods qualify as
	// Class.method.
	depth := 0
	className := ""
	classDepth := -1

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		if e.Language == "javascript" {
			if m := jsClassRe.FindStringSubmatch(trimmed); m != nil {
				className = m[1]
				classDepth = depth
			}
		}

		name, parent, matched := e.matchHeader(trimmed, className, classDepth, depth)
		if !matched {
			depth += braceDelta(trimmed)
			if classDepth >= 0 && depth <= classDepth {
				className = ""
				classDepth = -1
			}
			continue
		}

		end, ok := matchBody(lines, i)
		if !ok {
			perrs = append(perrs, ParseError{
				Line:    i + 1,
				Message: "unbalanced braces in " + name,
			})
			// Resume on the next line; only this unit is lost.
			depth += braceDelta(trimmed)
			continue
		}

		qualified := name
		if parent != "" {
			qualified = parent + "." + name
		}
		funcs = append(funcs, Function{
			Name:          name,
			QualifiedName: qualified,
			Signature:     signatureLine(trimmed),
			Body:          strings.Join(lines[i:end+1], "\n"),
			StartLine:     i + 1,
			EndLine:       end + 1,
			Parent:        parent,
		})

		for j := i; j <= end; j++ {
			depth += braceDelta(strings.TrimSpace(lines[j]))
		}
		if classDepth >= 0 && depth <= classDepth {
			className = ""
			classDepth = -1
		}
		i = end
	}
	return funcs, perrs
}

func (e CStyleExtractor) matchHeader(trimmed, className string, classDepth, depth int) (name, parent string, ok bool) {
	switch e.Language {
	case "go":
		if m := goFuncRe.FindStringSubmatch(trimmed); m != nil {
			return m[2], m[1], true
		}
	case "javascript":
		if m := jsFuncRe.FindStringSubmatch(trimmed); m != nil {
			return m[1], "", true
		}
		if m := jsArrowRe.FindStringSubmatch(trimmed); m != nil {
			return m[1], "", true
		}
		// Bare method syntax only makes sense one level inside a class body.
		if className != "" && depth == classDepth+1 {
			if m := jsMethodRe.FindStringSubmatch(trimmed); m != nil && !jsKeywords[m[1]] {
				return m[1], className, true
			}
		}
	}
	return "", "", false
}

// matchBody finds the line with the brace that closes the unit opened at
// start. Arrow functions without braces end on the statement line itself.
func matchBody(lines []string, start int) (end int, ok bool) {
	opened := false
	depth := 0
	for j := start; j < len(lines); j++ {
		for _, c := range stripLineLiterals(lines[j]) {
			switch c {
			case '{':
				opened = true
				depth++
			case '}':
				depth--
				if opened && depth == 0 {
					return j, true
				}
			}
		}
		if !opened && j == start && strings.Contains(lines[j], "=>") {
			// Braceless arrow body: a single expression on the header line.
			return j, true
		}
	}
	return 0, false
}

// braceDelta counts net braces on a line, ignoring string literals and
// line comments.
func braceDelta(line string) int {
	d := 0
	for _, c := range stripLineLiterals(line) {
		switch c {
		case '{':
			d++
		case '}':
			d--
		}
	}
	return d
}

// stripLineLiterals removes quoted literals and trailing // comments so
// braces inside them do not confuse depth tracking.
func stripLineLiterals(line string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return b.String()
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// signatureLine trims the trailing opening brace from a header line.
func signatureLine(trimmed string) string {
	return strings.TrimSpace(strings.TrimSuffix(trimmed, "{"))
}
