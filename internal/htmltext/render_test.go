package htmltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "nothing to do", "nothing to do"},
		{"empty", "", ""},
		{"line break", "Line one<br>Line two", "Line one\nLine two"},
		{"self closing break", "Line one<br/>Line two", "Line one\nLine two"},
		{"list items", "<ul><li>a</li><li>b</li></ul>", "\na\nb"},
		{"paragraph", "<p>Hello</p>", "\n\nHello"},
		{"div with attributes", `x<div class="note">y</div>`, "x\n\ny"},
		{"table cells", "<table><tr><td>a</td><td>b</td></tr></table>", "\n\n\ta\tb"},
		{"head removed", "<head><title>T</title></head>Body", "Body"},
		{"script removed", `<script type="text/javascript">alert("<br>")</script>Safe`, "Safe"},
		{"style removed", `<style type="text/css">p { color: red }</style>x`, "x"},
		{"other tags stripped", `<a href="http://x">link</a> and <b>bold</b>`, "link and bold"},
		{"source newlines become spaces", "a\r\nb\tc", "a bc"},
		{"space runs collapse", "a    b\n\n c", "a b c"},
		{"blank lines collapse", "a<p></p><p></p><p>b", "a\n\nb"},
		{"tab runs collapse", "<td><td><td><td><td><td>x", "\t\t\t\tx"},
		{
			"entities",
			"Fish &amp; Chips&nbsp;&copy; &trade; &lt;tag&gt; &bull;",
			"Fish  Chips (c) (tm) <tag>  * ",
		},
		{"entities are case insensitive", "&NBSP;x&Reg;", " x(r)"},
		{"fraction and quotes", "1&frasl;2 &lsaquo;q&rsaquo;", "1/2 <q>"},
		{"numeric entities dropped", "it&#39;s", "its"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in))
		})
	}
}

func TestRenderIsTotal(t *testing.T) {
	inputs := []string{
		"<<<>>>",
		"<p",
		"&&&;;;",
		"</head></script>",
		"<script>never closed",
		strings.Repeat("<div>", 1000),
		"\x00\xff\xfe",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = Render(in) }, "input %q", in)
	}
}
