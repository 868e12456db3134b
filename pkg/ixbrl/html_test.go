package ixbrl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const htmlContent = `<div>
	<p>First paragraph</p>
	<div>
		<span>Nested <br />span</span>
		<a>Link text</a>
	</div>
	<p>Second <span>paragraph</span></p>
	<ul>
		<li>Item 1</li>
		<li>Item 2</li>
	</ul>
</div>`

func TestText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	require.NoError(t, err)
	text := HTMLText(doc)
	expected := `First paragraph
Nested span Link text
Second paragraph
Item 1
Item 2`
	assert.Equal(t, expected, text)
}

func TestTextKeepsFactsInline(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div class="content-block">Revenue was
		<ix:nonFraction name="esrs:Revenue" contextRef="c">€1,000</ix:nonFraction> in
		<ix:nonNumeric name="esrs:Year" contextRef="c">2024</ix:nonNumeric>.</div>`))
	require.NoError(t, err)
	assert.Equal(t, "Revenue was €1,000 in 2024.", HTMLText(doc))
}

func TestFindElements(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head><title> Annual  report </title></head><body>
		<div class="section"><div class="content-block first">One</div></div>
		<div class="content-block">Two</div>
		<div class="other">Three</div>
	</body></html>`))
	require.NoError(t, err)

	blocks := FindElements(doc, "div", "content-block")
	require.Len(t, blocks, 2)
	assert.Equal(t, "One", HTMLText(blocks[0]))
	assert.Equal(t, "Two", HTMLText(blocks[1]))
	assert.Len(t, FindElements(doc, "div", ""), 4)
	assert.Equal(t, "Annual report", Title(doc))
}

func TestTitleMissing(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p>no title</p>`))
	require.NoError(t, err)
	assert.Equal(t, "", Title(doc))
}
