package apierr

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const (
	defaultMessage = "Something went wrong"
	maxMessageLen  = 300
)

// reserved keys carry the message or a machine code, never a field error.
var reserved = map[string]bool{
	"error":   true,
	"message": true,
	"detail":  true,
	"code":    true,
	"errors":  true,
}

var strict = bluemonday.StrictPolicy()

// Sanitize reduces server supplied text to plain text fit for a terminal.
func Sanitize(s string) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxMessageLen {
		s = string(r[:maxMessageLen])
	}
	return s
}

// Parse builds the Error for a non-2xx response. JSON bodies yield the
// message from "message", "error" or "detail" (first non-empty wins) plus
// any field errors; HTML error pages are reduced to their title.
func Parse(status int, contentType string, body []byte) *Error {
	e := &Error{Kind: KindForStatus(status), Status: status}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}

	switch {
	case strings.Contains(mediaType, "json"):
		parseJSON(e, body)
	case mediaType == "text/html":
		e.Message = Sanitize(htmlTitle(body))
	default:
		e.Message = Sanitize(string(body))
	}

	if e.Message == "" {
		e.Message = e.FieldSummary()
	}
	if e.Message == "" {
		e.Message = defaultMessage
	}
	return e
}

func parseJSON(e *Error, body []byte) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = Sanitize(string(body))
		return
	}

	switch v := raw.(type) {
	case string:
		e.Message = Sanitize(v)
		return
	case []any:
		e.Message = Sanitize(strings.Join(stringsOf(v), " "))
		return
	case map[string]any:
		for _, key := range []string{"message", "error", "detail"} {
			if s, ok := v[key].(string); ok && s != "" {
				e.Message = Sanitize(s)
				break
			}
		}
		if s, ok := v["code"].(string); ok {
			e.Code = s
		}

		fields := map[string][]string{}
		for k, val := range v {
			if reserved[k] {
				continue
			}
			if msgs := stringsOf(val); len(msgs) > 0 {
				fields[k] = msgs
			}
		}
		if nested, ok := v["errors"].(map[string]any); ok {
			for k, val := range nested {
				if msgs := stringsOf(val); len(msgs) > 0 {
					fields[k] = msgs
				}
			}
		}
		if len(fields) > 0 {
			e.Fields = fields
		}
	}
}

// stringsOf accepts a string or a list of strings.
func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{Sanitize(t)}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, Sanitize(s))
			}
		}
		return out
	}
	return nil
}

func htmlTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			inTitle = string(name) == "title"
		case html.EndTagToken:
			inTitle = false
		case html.TextToken:
			if inTitle {
				return string(tokenizer.Text())
			}
		}
	}
}
