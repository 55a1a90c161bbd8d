// Package archive reads and writes notebook backup archives.
//
// An archive is a zip file with one plain-text entry per document, named
// "<document name>.nerdcalci". Each entry line carries one expression;
// computed results are appended as a "# result" comment so the text file
// reads well on its own, and the comment is stripped again on import.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Extension is the per-document entry suffix inside an archive.
const Extension = ".nerdcalci"

// Document is one notebook document as exported.
type Document struct {
	Name  string
	Lines []Line
}

// Line pairs an expression with its computed result.
type Line struct {
	Expression string
	Result     string
}

// Parsed is one document as recovered from an archive: name and bare
// expressions, results discarded for re-evaluation by the caller.
type Parsed struct {
	Name        string
	Expressions []string
}

// Export writes docs as a zip archive and returns the number of entries
// written. Zero documents produce a valid, empty archive.
func Export(w io.Writer, docs []Document) (int, error) {
	zw := zip.NewWriter(w)
	count := 0
	for _, doc := range docs {
		entry, err := zw.Create(doc.Name + Extension)
		if err != nil {
			return count, fmt.Errorf("create entry %q: %w", doc.Name, err)
		}
		if _, err := io.WriteString(entry, Render(doc)); err != nil {
			return count, fmt.Errorf("write entry %q: %w", doc.Name, err)
		}
		count++
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("finish archive: %w", err)
	}
	return count, nil
}

// Import reads a zip archive and returns its documents. Entries without
// the expected extension, and directories, are skipped.
func Import(r io.Reader) ([]Parsed, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var docs []Parsed
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, Extension) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %q: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %q: %w", f.Name, err)
		}
		docs = append(docs, Parsed{
			Name:        strings.TrimSuffix(f.Name, Extension),
			Expressions: parseContent(string(content)),
		})
	}
	return docs, nil
}

// Render turns a document into its plain-text entry body.
func Render(doc Document) string {
	out := make([]string, len(doc.Lines))
	for i, ln := range doc.Lines {
		out[i] = formatEntry(ln.Expression, ln.Result)
	}
	return strings.Join(out, "\n")
}

// formatEntry renders one line, annotating the result as a trailing
// comment when it adds information the expression does not already show.
func formatEntry(expression, result string) string {
	expr := strings.TrimSpace(expression)
	res := strings.TrimSpace(result)
	switch {
	case expr == "" || res == "" || res == "Err":
		return expr
	case strings.HasPrefix(expr, "#"):
		return expr
	case shouldShowResult(expr):
		return expr + " # " + res
	default:
		return expr
	}
}

var simpleAssignment = regexp.MustCompile(`^\s*[a-zA-Z][a-zA-Z0-9\s]*\s*=\s*[\d.]+\s*$`)

// shouldShowResult reports whether a line's result is worth annotating.
// A simple assignment like "rate = 5" already shows its value; anything
// with arithmetic in it, or without an "=", does not.
func shouldShowResult(expression string) bool {
	if simpleAssignment.MatchString(expression) {
		return false
	}
	return strings.ContainsAny(expression, "+-*/%^") || !strings.Contains(expression, "=")
}

// parseContent recovers expressions from an entry body. Result comments
// are stripped, blank lines dropped. A line starting with "#" is kept
// whole: it is a comment expression, not an annotation.
func parseContent(content string) []string {
	var exprs []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if i := strings.Index(line, "#"); i > 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			exprs = append(exprs, line)
		}
	}
	return exprs
}
