package scanner

import (
	"regexp"
	"strings"
)

// callRe captures the identifier immediately before an opening paren,
// optionally the last segment of a dotted chain (obj.helper( -> helper).
var callRe = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)

var callKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true,
	"catch": true, "func": true, "function": true, "def": true, "class": true,
	"go": true, "defer": true, "select": true, "range": true, "with": true,
	"elif": true, "except": true, "lambda": true, "print": true,
	"make": true, "new": true, "len": true, "cap": true, "append": true,
	"panic": true, "delete": true, "copy": true, "close": true,
	"super": true, "this": true, "await": true, "typeof": true, "assert": true,
	"isinstance": true, "str": true, "int": true, "float": true, "list": true,
	"dict": true, "set": true, "tuple": true, "bool": true,
}

// CalleeNames extracts candidate call targets from a function body. Names
// are bare identifiers (the last segment of dotted calls), deduplicated,
// with language keywords and builtins filtered out. Self-calls are kept so
// recursion shows up as a self-loop edge.
func CalleeNames(body string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if isDeclarationHeader(strings.TrimSpace(line)) {
			continue
		}
		clean := stripLineLiterals(line)
		// Drop Python comments too; harmless for other languages since
		// stripLineLiterals already protects string contents.
		if k := strings.IndexByte(clean, '#'); k >= 0 {
			clean = clean[:k]
		}
		for _, m := range callRe.FindAllStringSubmatch(clean, -1) {
			name := m[1]
			if callKeywords[name] || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// isDeclarationHeader reports whether a line declares a function rather
// than calling one. The declared name on a header line is not a call, and
// matching it would make every function look recursive.
func isDeclarationHeader(trimmed string) bool {
	for _, prefix := range []string{
		"def ", "async def ", "func ", "function ", "async function ",
		"export function ", "export async function ", "class ", "export class ",
	} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// Resolver maps bare callee names to function IDs. Same-file definitions
// win; otherwise a name resolves only when exactly one function in the
// project has it. Ambiguous and unknown names are skipped, which keeps the
// graph conservative rather than noisy.
type Resolver struct {
	byFile map[string]map[string]string // file -> bare name -> function ID
	global map[string][]string          // bare name -> function IDs
}

func NewResolver() *Resolver {
	return &Resolver{
		byFile: make(map[string]map[string]string),
		global: make(map[string][]string),
	}
}

// Add registers a function definition under its bare name.
func (r *Resolver) Add(filePath, bareName, functionID string) {
	m := r.byFile[filePath]
	if m == nil {
		m = make(map[string]string)
		r.byFile[filePath] = m
	}
	m[bareName] = functionID
	r.global[bareName] = append(r.global[bareName], functionID)
}

// Resolve returns the function ID for a callee name seen in filePath.
func (r *Resolver) Resolve(filePath, bareName string) (string, bool) {
	if id, ok := r.byFile[filePath][bareName]; ok {
		return id, true
	}
	if ids := r.global[bareName]; len(ids) == 1 {
		return ids[0], true
	}
	return "", false
}
