package render

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	soundTokenRe = regexp.MustCompile(`\[sound:([^\]]+)\]`)
	spaceRunRe   = regexp.MustCompile(`[ \t\f\v\r\x{00a0}]+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

var blockTags = map[string]bool{
	"div": true, "p": true, "li": true, "tr": true, "ul": true, "ol": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "blockquote": true, "pre": true,
}

// StripHTML converts card HTML to plain text. When sendImages is true, images
// and sounds are described by filename; otherwise they are omitted.
func StripHTML(content string, sendImages bool) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))
	skip := 0

loop:
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			break loop
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style":
				if tt == html.StartTagToken {
					skip++
				}
			case tag == "br":
				sb.WriteByte('\n')
			case tag == "img":
				if sendImages {
					sb.WriteString(imageLabel(z, hasAttr))
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style":
				if skip > 0 {
					skip--
				}
			case blockTags[tag]:
				sb.WriteByte('\n')
			}
		}
	}

	text := soundTokenRe.ReplaceAllStringFunc(sb.String(), func(tok string) string {
		if !sendImages {
			return ""
		}
		return "[Audio: " + soundTokenRe.FindStringSubmatch(tok)[1] + "]"
	})
	return normalizeSpace(text)
}

func imageLabel(z *html.Tokenizer, hasAttr bool) string {
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) != "src" {
			continue
		}
		src := string(val)
		if strings.HasPrefix(strings.ToLower(src), "data:") || src == "" {
			return "[Image]"
		}
		return "[Image: " + path.Base(src) + "]"
	}
	return "[Image]"
}

func normalizeSpace(s string) string {
	s = spaceRunRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
