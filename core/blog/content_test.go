package blog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "script", content: `<p>hi</p><script>alert(1)</script>`, want: `<p>hi</p>`},
		{name: "event handler", content: `<p onclick="steal()">hi</p>`, want: `<p>hi</p>`},
		{
			name:    "resized image",
			content: `<img src="/media/a.png" width="320" height="200" onerror="x()">`,
			want:    `<img src="/media/a.png" width="320" height="200">`,
		},
		{name: "javascript link", content: `<a href="javascript:alert(1)">x</a>`, want: `x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.content))
		})
	}
}

func TestPlainTextAndExcerpt(t *testing.T) {
	content := "<h1>Go&nbsp;tips</h1><p>Use <b>small</b>\n interfaces.</p><p>Errors are values.</p>"
	assert.Equal(t, "Go tips Use small interfaces. Errors are values.", PlainText(content))

	long := "<p>" + strings.Repeat("word ", 100) + "</p>"
	excerpt := Excerpt(long)
	assert.True(t, strings.HasSuffix(excerpt, "…"))
	assert.LessOrEqual(t, len([]rune(excerpt)), excerptLen+1)
	assert.Equal(t, "Go tips Use small interfaces. Errors are values.", Excerpt(content))
}

func TestReadingMinutes(t *testing.T) {
	assert.Equal(t, 1, ReadingMinutes(""))
	assert.Equal(t, 1, ReadingMinutes("<p>"+strings.Repeat("w ", 200)+"</p>"))
	assert.Equal(t, 2, ReadingMinutes("<p>"+strings.Repeat("w ", 201)+"</p>"))
	assert.Equal(t, 3, ReadingMinutes(strings.Repeat("<p>w w w w w</p>", 100)))
}
