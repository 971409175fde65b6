package blog

import (
	"html"
	"math"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/geoffroyotegbeye/codesens/core"
)

const (
	excerptLen     = 160
	wordsPerMinute = 200
)

var (
	ugcPolicy    = newContentPolicy()
	strictPolicy = bluemonday.StrictPolicy()

	tagOpenRegex = regexp.MustCompile(`<`)
	imgRegex     = regexp.MustCompile(`(?i)<img\s`)
)

// newContentPolicy keeps what the rich-text editor produces: formatting, links, code blocks
// and images resized through width/height.
func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("width", "height", "alt", "title").OnElements("img")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).OnElements("pre", "code", "span", "p", "img")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Sanitize strips everything unsafe from user provided HTML.
func Sanitize(content string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(content))
}

// PlainText returns the text of an HTML fragment with whitespace collapsed.
func PlainText(content string) string {
	// keep words of adjacent blocks apart
	text := strictPolicy.Sanitize(tagOpenRegex.ReplaceAllString(content, " <"))
	return strings.Join(strings.Fields(html.UnescapeString(text)), " ")
}

// Excerpt returns the first characters of the text of an HTML fragment.
func Excerpt(content string) string {
	return core.Truncate(PlainText(content), excerptLen)
}

// ReadingMinutes estimates the reading time of an HTML fragment, never less than a minute.
func ReadingMinutes(content string) int {
	words := len(strings.Fields(PlainText(content)))
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

func hasImage(content string) bool {
	return imgRegex.MatchString(content)
}
