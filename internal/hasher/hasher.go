// Package hasher derives stable artifact identifiers and content
// fingerprints for change detection. The fingerprint is a BLAKE3 digest of
// the normalized function body, so cosmetic edits (comments, whitespace,
// formatting) never trigger reprocessing.
package hasher

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

// FunctionID builds the stable artifact identifier from the file's relative
// path and the function's qualified name. IDs are immutable: a rename yields
// a new ID and the old one is eventually classified DELETED.
func FunctionID(relPath, qualifiedName string) string {
	return fmt.Sprintf("%s::%s", relPath, qualifiedName)
}

// SplitID breaks a function ID into its path and name parts. The name may
// itself contain "::" (nested qualifiers), so only the first separator splits.
func SplitID(id string) (relPath, name string, ok bool) {
	path, rest, found := strings.Cut(id, "::")
	if !found || path == "" || rest == "" {
		return "", "", false
	}
	return path, rest, true
}

// Fingerprint hashes the normalized body. The digest changes if and only if
// semantically meaningful text changes.
func Fingerprint(body, language string) string {
	sum := blake3.Sum256([]byte(Normalize(body, language)))
	return hex.EncodeToString(sum[:])
}

var innerSpace = regexp.MustCompile(`\s+`)

// Normalize strips comments, trims every line, collapses internal whitespace
// runs to a single space, drops empty lines and joins with "\n".
func Normalize(body, language string) string {
	code := stripComments(body, language)

	var out []string
	for _, line := range strings.Split(code, "\n") {
		line = innerSpace.ReplaceAllString(strings.TrimSpace(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func stripComments(code, language string) string {
	switch language {
	case "python":
		return stripPythonComments(code)
	case "javascript", "cpp", "go":
		return stripCStyleComments(code)
	default:
		return code
	}
}

// stripPythonComments removes # comments and triple-quoted docstrings while
// preserving string literals (a # inside a string is not a comment).
func stripPythonComments(code string) string {
	var b strings.Builder
	i, n := 0, len(code)
	for i < n {
		// Triple-quoted strings are treated as docstrings and dropped.
		if i+3 <= n && (code[i:i+3] == `"""` || code[i:i+3] == "'''") {
			quote := code[i : i+3]
			i += 3
			for i+3 <= n && code[i:i+3] != quote {
				i++
			}
			if i+3 <= n {
				i += 3
			} else {
				i = n
			}
			continue
		}
		if code[i] == '"' || code[i] == '\'' {
			i = copyString(&b, code, i, code[i])
			continue
		}
		if code[i] == '#' {
			for i < n && code[i] != '\n' {
				i++
			}
			continue
		}
		b.WriteByte(code[i])
		i++
	}
	return b.String()
}

// stripCStyleComments removes // and /* */ comments, preserving single,
// double and backtick-quoted literals.
func stripCStyleComments(code string) string {
	var b strings.Builder
	i, n := 0, len(code)
	for i < n {
		switch {
		case code[i] == '\'' || code[i] == '"' || code[i] == '`':
			i = copyString(&b, code, i, code[i])
		case i+1 < n && code[i] == '/' && code[i+1] == '*':
			i += 2
			for i+1 < n && !(code[i] == '*' && code[i+1] == '/') {
				i++
			}
			if i+1 < n {
				i += 2
			} else {
				i = n
			}
		case i+1 < n && code[i] == '/' && code[i+1] == '/':
			for i < n && code[i] != '\n' {
				i++
			}
		default:
			b.WriteByte(code[i])
			i++
		}
	}
	return b.String()
}

// copyString copies a quoted literal starting at i (the opening quote) into
// b, honoring backslash escapes, and returns the index past the closing quote.
func copyString(b *strings.Builder, code string, i int, quote byte) int {
	n := len(code)
	b.WriteByte(code[i])
	i++
	for i < n && code[i] != quote {
		if code[i] == '\\' && i+1 < n {
			b.WriteByte(code[i])
			b.WriteByte(code[i+1])
			i += 2
			continue
		}
		b.WriteByte(code[i])
		i++
	}
	if i < n {
		b.WriteByte(code[i])
		i++
	}
	return i
}
