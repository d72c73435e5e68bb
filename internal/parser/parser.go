// Package parser extracts front matter and inline @tags from raw note text.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// tagRe matches @word tokens that do not continue a preceding word, so
// "mail@example" is plain text while "see @example" carries a tag.
var tagRe = regexp.MustCompile(`(?:^|[^0-9A-Za-z_])(@[0-9A-Za-z_]+)`)

// Result holds the output of parsing a note.
type Result struct {
	Title string
	Group string
	Meta  map[string]any // full front matter, free-form keys included
	Body  string
	Tags  []string // sorted, deduplicated, with leading @
}

// Parse splits raw note text into front matter and body and extracts the
// tag set from the body. The front matter must be a leading YAML block
// fenced by `---` lines and must provide non-empty title and group keys;
// anything else is a parse error the caller reports per note.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, err
	}

	title, err := scalarField(fm, "title")
	if err != nil {
		return nil, err
	}
	group, err := scalarField(fm, "group")
	if err != nil {
		return nil, err
	}

	return &Result{
		Title: title,
		Group: group,
		Meta:  fm,
		Body:  body,
		Tags:  ExtractTags(body),
	}, nil
}

// splitFrontMatter separates the fenced YAML block from the body. The
// opening fence must be the very first line of the file.
func splitFrontMatter(content string) (map[string]any, string, error) {
	const fence = "---"

	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != fence {
		return nil, "", fmt.Errorf("parser: first line must be %q", fence)
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == fence {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, "", fmt.Errorf("parser: front matter has no closing %q", fence)
	}

	var fm map[string]any
	block := strings.Join(lines[1:end], "\n")
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, "", fmt.Errorf("parser: front matter is not valid YAML: %w", err)
	}

	body := strings.Join(lines[end+1:], "\n")
	return fm, body, nil
}

// scalarField reads a required scalar front-matter field as a string.
func scalarField(fm map[string]any, key string) (string, error) {
	raw, ok := fm[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("parser: front matter is missing the %q field", key)
	}
	s := strings.TrimSpace(fmt.Sprint(raw))
	if s == "" {
		return "", fmt.Errorf("parser: front matter field %q is empty", key)
	}
	return s, nil
}

// ExtractTags returns the sorted set of distinct @word tokens in body.
// Matching is case-sensitive; repeated occurrences collapse to one tag.
func ExtractTags(body string) []string {
	matches := tagRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	sort.Strings(out)
	return out
}
