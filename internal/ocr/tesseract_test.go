package ocr

import (
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTSV = `level	page_num	block_num	par_num	line_num	word_num	left	top	width	height	conf	text
1	1	0	0	0	0	0	0	800	600	-1
4	1	1	1	1	0	50	40	700	30	-1
5	1	1	1	1	1	50	40	120	30	96.1	Invoice
5	1	1	1	1	2	180	40	90	30	93.5	total:
5	1	1	1	1	3	280	40	80	30	91.0	$400
5	1	1	1	2	1	50	90	110	28	88.7	invoice
5	1	1	1	2	2	170	90	60	28	12.0
`

func TestParseTSV(t *testing.T) {
	words := parseTSV(sampleTSV)

	require.Len(t, words, 4)
	assert.Equal(t, "Invoice", words[0].Text)
	assert.Equal(t, image.Rect(50, 40, 170, 70), words[0].Box)
	assert.InDelta(t, 96.1, words[0].Confidence, 0.01)
	assert.Equal(t, "$400", words[2].Text)
}

func TestParseTSVGarbage(t *testing.T) {
	assert.Empty(t, parseTSV(""))
	assert.Empty(t, parseTSV("not\ttsv\nat all"))
	// Non-numeric geometry is skipped, not fatal.
	bad := "header\n5\t1\t1\t1\t1\t1\tx\ty\tw\th\t90\tword"
	assert.Empty(t, parseTSV(bad))
}

func TestFindTerm(t *testing.T) {
	words := parseTSV(sampleTSV)

	boxes := FindTerm(words, "invoice")
	assert.Len(t, boxes, 2, "matches are case-insensitive")

	boxes = FindTerm(words, "total")
	assert.Len(t, boxes, 1, "trailing punctuation is ignored")

	assert.Empty(t, FindTerm(words, "missing"))
	assert.Empty(t, FindTerm(words, "   "))
}

func TestFindTermPhrase(t *testing.T) {
	words := parseTSV(sampleTSV)

	boxes := FindTerm(words, "Invoice Total")
	require.Len(t, boxes, 1, "consecutive words match as a phrase")
	assert.Equal(t, image.Rect(50, 40, 270, 70), boxes[0], "box spans the whole run")

	assert.Empty(t, FindTerm(words, "total invoice"), "order matters")
	assert.Empty(t, FindTerm(words, "invoice total missing"))
}

func TestNewTesseractDefaults(t *testing.T) {
	tess := NewTesseract("", "", 0)
	assert.Equal(t, "tesseract", tess.binary)
	assert.Equal(t, "eng", tess.languages)
	assert.Equal(t, 120*time.Second, tess.timeout)

	custom := NewTesseract("/usr/bin/tesseract", "eng+deu", time.Minute)
	assert.True(t, strings.Contains(custom.languages, "deu"))
}
