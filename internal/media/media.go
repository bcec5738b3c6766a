// Package media resolves embedded media references in card HTML.
//
// Resolution never fails: an unresolved reference degrades to a visible
// placeholder that keeps the original filename for diagnosis.
package media

import (
	"encoding/base64"
	"html"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const maxDisplayName = 30

var (
	imgTagRe  = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	srcAttrRe = regexp.MustCompile(`(?is)\bsrc\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	soundRe   = regexp.MustCompile(`\[sound:([^\]]+)\]`)
	hexRunRe  = regexp.MustCompile(`[0-9a-fA-F]{32,}`)
)

// Store maps media filenames to their bytes.
type Store map[string][]byte

// Lookup finds the stored key for name. It tries the exact name (raw and
// URL-decoded), then the name with a single digit prefix, then any key that
// contains the same 32+ character hex run. The boolean is false on miss.
func Lookup(name string, store Store) (string, bool) {
	if name == "" || len(store) == 0 {
		return "", false
	}
	candidates := []string{name}
	if decoded, err := url.PathUnescape(name); err == nil && decoded != name {
		candidates = append(candidates, decoded)
	}

	for _, c := range candidates {
		if _, ok := store[c]; ok {
			return c, true
		}
	}
	for _, c := range candidates {
		for d := '0'; d <= '9'; d++ {
			key := string(d) + c
			if _, ok := store[key]; ok {
				return key, true
			}
		}
	}

	run := hexRunRe.FindString(name)
	if run == "" {
		return "", false
	}
	run = strings.ToLower(run)
	keys := make([]string, 0, len(store))
	for k := range store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), run) {
			return k, true
		}
	}
	return "", false
}

// Resolve rewrites every <img src> to a data URI and every [sound:x] token
// to an inline marker. Misses become placeholders.
func Resolve(content string, store Store) string {
	out := imgTagRe.ReplaceAllStringFunc(content, func(tag string) string {
		return resolveImage(tag, store)
	})
	return soundRe.ReplaceAllStringFunc(out, func(tok string) string {
		name := soundRe.FindStringSubmatch(tok)[1]
		escaped := html.EscapeString(name)
		if _, ok := Lookup(name, store); ok {
			return `<span class="audio" title="` + escaped + `">[Audio: ` + escaped + `]</span>`
		}
		return `<span class="missing-media audio" title="` + escaped + `">[Missing audio: ` + escaped + `]</span>`
	})
}

func resolveImage(tag string, store Store) string {
	loc := srcAttrRe.FindStringSubmatchIndex(tag)
	if loc == nil {
		return tag
	}
	var start, end int
	switch {
	case loc[2] >= 0:
		start, end = loc[2], loc[3]
	case loc[4] >= 0:
		start, end = loc[4], loc[5]
	default:
		start, end = loc[6], loc[7]
	}
	src := tag[start:end]
	if isExternal(src) {
		return tag
	}

	key, ok := Lookup(src, store)
	if !ok {
		return Placeholder(src)
	}
	uri := DataURI(key, store[key])
	if loc[2] < 0 && loc[4] < 0 {
		// Unquoted value; quote the replacement.
		uri = `"` + uri + `"`
	}
	return tag[:start] + uri + tag[end:]
}

func isExternal(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://")
}

// Placeholder is the visible stand-in for an image that could not be resolved.
func Placeholder(name string) string {
	escaped := html.EscapeString(name)
	return `<span class="missing-media" title="` + escaped + `">[Missing image: ` +
		html.EscapeString(DisplayName(name)) + `]</span>`
}

// DisplayName shortens long filenames for display.
func DisplayName(name string) string {
	r := []rune(name)
	if len(r) <= maxDisplayName {
		return name
	}
	return string(r[:maxDisplayName-3]) + "..."
}

// DataURI encodes data as a self-contained data URI.
func DataURI(name string, data []byte) string {
	return "data:" + MIMEType(name, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// MIMEType guesses a media type from the extension, then from the content.
func MIMEType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if i := strings.Index(t, ";"); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	t := http.DetectContentType(data)
	if i := strings.Index(t, ";"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
