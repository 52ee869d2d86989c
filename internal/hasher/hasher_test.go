package hasher

import "testing"

func TestFunctionID(t *testing.T) {
	id := FunctionID("src/api.py", "Handler.handle")
	if id != "src/api.py::Handler.handle" {
		t.Errorf("FunctionID = %q", id)
	}

	path, name, ok := SplitID(id)
	if !ok || path != "src/api.py" || name != "Handler.handle" {
		t.Errorf("SplitID = %q %q %v", path, name, ok)
	}
}

func TestSplitIDMalformed(t *testing.T) {
	for _, bad := range []string{"", "nopath", "::name", "path::"} {
		if _, _, ok := SplitID(bad); ok {
			t.Errorf("SplitID(%q) accepted malformed ID", bad)
		}
	}
}

func TestFingerprintStableAcrossRuns(t *testing.T) {
	body := "def f(x):\n    return x + 1\n"
	a := Fingerprint(body, "python")
	b := Fingerprint(body, "python")
	if a != b {
		t.Errorf("fingerprint not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintIgnoresCosmeticEdits(t *testing.T) {
	base := "def f(x):\n    return x + 1\n"
	cosmetic := []string{
		"def f(x):\n    # add one\n    return x + 1\n",
		"def f(x):\n\n\n    return  x  +  1\n",
		"def f(x):\n    \"\"\"Adds one.\"\"\"\n    return x + 1\n",
		"def f(x):\n\treturn x + 1\n",
	}
	want := Fingerprint(base, "python")
	for _, body := range cosmetic {
		if got := Fingerprint(body, "python"); got != want {
			t.Errorf("cosmetic edit changed fingerprint:\n%q", body)
		}
	}
}

func TestFingerprintChangesOnTokenEdit(t *testing.T) {
	base := Fingerprint("def f(x):\n    return x + 1\n", "python")
	edited := Fingerprint("def f(x):\n    return x + 2\n", "python")
	if base == edited {
		t.Error("token-level edit did not change fingerprint")
	}
}

func TestFingerprintCStyle(t *testing.T) {
	base := "function f(x) {\n  return x + 1;\n}\n"
	commented := "function f(x) {\n  // add one\n  /* block */\n  return x + 1;\n}\n"
	if Fingerprint(base, "javascript") != Fingerprint(commented, "javascript") {
		t.Error("C-style comments changed fingerprint")
	}
}

func TestNormalizePreservesStringContents(t *testing.T) {
	// A # inside a Python string is not a comment; // inside a JS string
	// is not a comment either.
	py := Normalize(`x = "a # b"`, "python")
	if py != `x = "a # b"` {
		t.Errorf("python: %q", py)
	}
	js := Normalize(`const u = "http://x";`, "javascript")
	if js != `const u = "http://x";` {
		t.Errorf("javascript: %q", js)
	}
}

func TestNormalizeUnknownLanguagePassthrough(t *testing.T) {
	got := Normalize("  a   b  \n\n c ", "fortran")
	if got != "a b\nc" {
		t.Errorf("normalize = %q", got)
	}
}
