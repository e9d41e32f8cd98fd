// Package htmltext renders rich-text incident descriptions as plain text for
// trackers that cannot display markup.
package htmltext

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&bull;", " * ",
	"&lsaquo;", "<",
	"&rsaquo;", ">",
	"&trade;", "(tm)",
	"&frasl;", "/",
	"&lt;", "<",
	"&gt;", ">",
	"&copy;", "(c)",
	"&reg;", "(r)",
)

var (
	namedEntity = regexp.MustCompile(`(?i)&[a-z]{2,8};`)
	otherEntity = regexp.MustCompile(`&(.{2,6});`)
	spaceRun    = regexp.MustCompile(` +`)

	breakSpaceBreak = regexp.MustCompile("\n +\n")
	tabSpaceTab     = regexp.MustCompile("\t +\t")
	tabSpaceBreak   = regexp.MustCompile("\t +\n")
	breakSpaceTab   = regexp.MustCompile("\n +\t")
	breakTabsBreak  = regexp.MustCompile("\n\t+\n")
	breakTabs       = regexp.MustCompile("\n\t+")
	breakRun        = regexp.MustCompile("\n{3,}")
	tabRun          = regexp.MustCompile("\t{5,}")
)

// Render converts HTML to plain text:
//
//   - head, script and style blocks are removed
//   - <td> becomes a tab, <br> and <li> a line break, <p>, <div> and <tr> a blank line
//   - all other tags are stripped
//   - a fixed set of named entities is decoded and the rest dropped
//   - runs of spaces collapse to one, blank lines to at most one, tabs to at most four
//
// Render never panics; if rendering fails the input is returned unchanged.
func Render(src string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = src
		}
	}()
	return render(src)
}

func render(src string) string {
	// Source line breaks and indentation carry no meaning in HTML.
	s := strings.NewReplacer("\r", " ", "\n", " ", "\t", "").Replace(src)
	s = spaceRun.ReplaceAllString(s, " ")

	var buf bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0 // depth inside head/script/style

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if isHidden(a) {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if skip > 0 {
				continue
			}
			switch a {
			case atom.Td:
				buf.WriteByte('\t')
			case atom.Br, atom.Li:
				buf.WriteByte('\n')
			case atom.P, atom.Div, atom.Tr:
				buf.WriteString("\n\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHidden(atom.Lookup(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				// Raw keeps entities encoded so only the fixed set is decoded below.
				buf.Write(z.Raw())
			}
		}
	}

	s = decodeEntities(buf.String())
	return collapse(s)
}

func isHidden(a atom.Atom) bool {
	return a == atom.Head || a == atom.Script || a == atom.Style
}

func decodeEntities(s string) string {
	s = namedEntity.ReplaceAllStringFunc(s, strings.ToLower)
	s = entityReplacer.Replace(s)
	return otherEntity.ReplaceAllString(s, "")
}

func collapse(s string) string {
	s = breakSpaceBreak.ReplaceAllString(s, "\n\n")
	s = tabSpaceTab.ReplaceAllString(s, "\t\t")
	s = tabSpaceBreak.ReplaceAllString(s, "\t\n")
	s = breakSpaceTab.ReplaceAllString(s, "\n\t")
	s = breakTabsBreak.ReplaceAllString(s, "\n\n")
	s = breakTabs.ReplaceAllString(s, "\n\t")
	s = breakRun.ReplaceAllString(s, "\n\n")
	return tabRun.ReplaceAllString(s, "\t\t\t\t")
}
