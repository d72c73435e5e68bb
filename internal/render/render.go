// Package render turns note markdown into standalone HTML pages and
// rewrites relative asset links for terminal output.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

//go:embed content.css
var contentCSS string

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
)

// linkRe captures the target of markdown links and images.
var linkRe = regexp.MustCompile(`!?\[[^\]]*\]\(([^)]+)\)`)

// Page renders a note body into a full HTML document. The page carries a
// <base href="../assets/"> so relative image links resolve against the
// vault's assets directory.
func Page(title, body string) ([]byte, error) {
	var rendered bytes.Buffer
	if err := md.Convert([]byte(body), &rendered); err != nil {
		return nil, fmt.Errorf("render: convert markdown: %w", err)
	}

	if title == "" {
		title = "No Title"
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	page.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	page.WriteString(`<meta charset="utf-8">` + "\n")
	page.WriteString(`<base href="../assets/">` + "\n")
	page.WriteString("<style>" + contentCSS + "</style>\n")
	page.WriteString("</head>\n<body class=\"body\">\n")
	page.Write(rendered.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// AdjustLinks rewrites relative link and image targets to absolute paths
// under assetsDir, so note source printed to a terminal has openable
// paths. URLs and absolute paths are left alone.
func AdjustLinks(source, assetsDir string) string {
	return linkRe.ReplaceAllStringFunc(source, func(match string) string {
		sub := linkRe.FindStringSubmatch(match)
		target := sub[1]
		if strings.Contains(target, "://") || filepath.IsAbs(target) {
			return match
		}
		abs := filepath.Join(assetsDir, target)
		return strings.Replace(match, "("+target+")", "("+abs+")", 1)
	})
}
