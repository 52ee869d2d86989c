// Package scanner walks source trees and extracts function units for the
// catalog. The extractors are deliberately line-oriented: they find function
// boundaries, signatures and bodies, which is all the catalog needs for
// identity and change detection. Parse failures are isolated per function —
// one malformed function never aborts the rest of a file or project.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"prism/internal/logging"
)

// Function is one extracted function or method unit.
type Function struct {
	Name          string
	QualifiedName string // includes enclosing class/receiver, dot-joined
	Signature     string
	Body          string
	StartLine     int // 1-indexed
	EndLine       int
	Parent        string // enclosing class/receiver, empty for free functions
}

// ParseError is a per-function extraction failure.
type ParseError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// FileResult is the outcome of scanning one file.
type FileResult struct {
	Path      string // relative to the scan root
	Language  string
	Functions []Function
	Errors    []ParseError
}

// Result aggregates a directory scan.
type Result struct {
	Files        []FileResult
	FilesScanned int
	FilesSkipped int
}

// Errors flattens the per-file parse errors.
func (r *Result) Errors() []ParseError {
	var out []ParseError
	for _, f := range r.Files {
		out = append(out, f.Errors...)
	}
	return out
}

// Extractor turns source text into function units. Implementations report
// malformed functions through ParseError values and keep going.
type Extractor interface {
	Extract(src string) ([]Function, []ParseError)
}

// languageByExt maps file extensions to extractor languages.
var languageByExt = map[string]string{
	".py":  "python",
	".pyw": "python",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "javascript",
	".tsx": "javascript",
	".go":  "go",
}

// defaultIgnores are directory/file names skipped during walks.
var defaultIgnores = []string{
	".git", ".prism", "node_modules", "vendor", "__pycache__",
	"venv", ".venv", "dist", "build", ".pytest_cache", ".mypy_cache",
	"*.egg-info", ".tox", "testdata",
}

// DetectLanguage returns the extractor language for a path, or "" when the
// file type is unsupported.
func DetectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// Scanner coordinates per-language extractors over files and directories.
type Scanner struct {
	ignores    []string
	extractors map[string]Extractor
	log        interface {
		Debug(msg string, args ...any)
		Warn(msg string, args ...any)
	}
}

// New builds a scanner with the default ignore list plus extra patterns
// (shell-style, matched against path segments).
func New(extraIgnores ...string) *Scanner {
	return &Scanner{
		ignores: append(append([]string{}, defaultIgnores...), extraIgnores...),
		extractors: map[string]Extractor{
			"python":     &PythonExtractor{},
			"javascript": &CStyleExtractor{Language: "javascript"},
			"go":         &CStyleExtractor{Language: "go"},
		},
		log: logging.New("scanner"),
	}
}

func (s *Scanner) ignored(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pat := range s.ignores {
			if ok, _ := filepath.Match(pat, seg); ok {
				return true
			}
		}
	}
	return false
}

// ScanFile extracts functions from a single file. rel is the path recorded
// in results (and in function IDs); pass the path relative to the project
// root.
func (s *Scanner) ScanFile(absPath, rel string) (*FileResult, error) {
	lang := DetectLanguage(absPath)
	if lang == "" {
		return nil, nil
	}
	ext, ok := s.extractors[lang]
	if !ok {
		return nil, nil
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", absPath, err)
	}

	funcs, perrs := ext.Extract(string(data))
	res := &FileResult{Path: filepath.ToSlash(rel), Language: lang, Functions: funcs}
	for _, pe := range perrs {
		pe.File = res.Path
		res.Errors = append(res.Errors, pe)
	}
	return res, nil
}

// ScanDir walks root and extracts functions from every supported file,
// parsing files concurrently. The result is ordered by path so scans are
// deterministic.
func (s *Scanner) ScanDir(root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var paths []string
	skipped := 0
	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if s.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if DetectLanguage(path) == "" {
			skipped++
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}

	res := &Result{FilesSkipped: skipped}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(8)
	for _, rel := range paths {
		g.Go(func() error {
			fr, err := s.ScanFile(filepath.Join(absRoot, rel), rel)
			if err != nil {
				// Unreadable files are reported, not fatal.
				s.log.Warn("skipping unreadable file", "path", rel, "error", err)
				mu.Lock()
				res.Files = append(res.Files, FileResult{
					Path:   filepath.ToSlash(rel),
					Errors: []ParseError{{File: filepath.ToSlash(rel), Message: err.Error()}},
				})
				mu.Unlock()
				return nil
			}
			if fr == nil {
				return nil
			}
			mu.Lock()
			res.Files = append(res.Files, *fr)
			res.FilesScanned++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	return res, nil
}
