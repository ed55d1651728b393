// Package parsers extracts structured payloads from oracle responses: JSON
// objects, code blocks and bulleted recommendation sections.
package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	errx "github.com/pushkal/server/internal/core/error"
	logx "github.com/pushkal/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen   = 128 * 1024 // 128KB
	maxRecs         = 10
	maxRecLen       = 500
	maxErrSnippet   = 200
	recommendHeader = "**recommendations:**"
)

var (
	ErrEmpty    = errors.New("empty response")
	ErrNoObject = errors.New("no json object found")
)

// ExtractFenced returns the body of the first fenced block tagged lang, else
// of the first untagged fence, else the whole content.
func ExtractFenced(content, lang string) string {
	content = clamp(content)
	if lang != "" {
		if body, ok := fenced(content, "```"+lang); ok {
			return strings.TrimSpace(body)
		}
	}
	if body, ok := fenced(content, "```"); ok {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(content)
}

func fenced(content, open string) (string, bool) {
	start := strings.Index(content, open)
	if start < 0 {
		return "", false
	}
	rest := content[start+len(open):]
	if open != "```" && rest != "" && !strings.ContainsRune("\r\n \t", rune(rest[0])) {
		return "", false
	}
	// drop the language tag of an untagged match such as ```python
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && open == "```" {
		if tag := strings.TrimSpace(rest[:nl]); tag != "" && !strings.ContainsAny(tag, " {}()=") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end], true
	}
	return rest, true
}

// ExtractCode returns the Go source contained in an oracle response.
func ExtractCode(content string) string {
	return ExtractFenced(content, "go")
}

// DecodeJSON parses the JSON object in content into dst. Surrounding prose
// and code fences are tolerated.
func DecodeJSON(content string, dst any) (err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "json_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("json parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
		}
	}()

	if strings.TrimSpace(content) == "" {
		return ErrEmpty
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("response invalid utf8")
	}
	body := ExtractFenced(content, "json")
	obj, ok := outermostObject(body)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoObject, safeSnippet(body))
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// DecodeObject parses the JSON object in content into a generic map.
func DecodeObject(content string) (map[string]any, error) {
	var m map[string]any
	if err := DecodeJSON(content, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoObject
	}
	return m, nil
}

func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// SplitRecommendations separates a "**Recommendations:**" section from an
// explanation. Bulleted lines of that section become recommendations and the
// text before it becomes the body. Without the header the text is returned
// unchanged.
func SplitRecommendations(text string) (string, []string) {
	text = clamp(text)
	idx := strings.Index(strings.ToLower(text), recommendHeader)
	if idx < 0 {
		return strings.TrimSpace(text), nil
	}
	body := strings.TrimSpace(text[:idx])
	section := text[idx+len(recommendHeader):]

	var recs []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		item, ok := bullet(line)
		if !ok || item == "" {
			continue
		}
		if len(item) > maxRecLen {
			item = item[:maxRecLen]
		}
		recs = append(recs, item)
		if len(recs) == maxRecs {
			break
		}
	}
	return body, recs
}

func bullet(line string) (string, bool) {
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(line[len(marker):]), true
		}
	}
	return "", false
}

func clamp(s string) string {
	if len(s) > maxContentLen {
		logx.Warn().
			Str("component", "parsers").
			Int("max_len", maxContentLen).
			Int("orig_len", len(s)).
			Msg("content truncated due to size limit")
		return s[:maxContentLen]
	}
	return s
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
