package challenge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Params are the inputs the solver needs: the challenge property object
// embedded in the page and the host serving the challenge script.
type Params struct {
	// Props is the challenge property object, passed to the solver verbatim.
	Props json.RawMessage

	// Host is the challenge script host, e.g. "xxxx.token.awswaf.com".
	Host string
}

// Extract pulls challenge parameters out of a challenged response body.
//
// The property object is found inside an inline script that assigns it to
// the marker identifier; the host comes from the src of the challenge script
// tag. Returns ErrExtraction when either is missing.
func Extract(body []byte) (*Params, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	params := &Params{}

	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if !strings.Contains(src, markerScript) {
			return true
		}
		if u, err := url.Parse(src); err == nil && u.Host != "" {
			params.Host = u.Host
			return false
		}
		return true
	})

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, markerProps) {
			return true
		}
		if props, ok := propsObject(text); ok {
			params.Props = props
			return false
		}
		return true
	})

	if params.Props == nil {
		return nil, fmt.Errorf("%w: property object missing", ErrExtraction)
	}
	if params.Host == "" {
		return nil, fmt.Errorf("%w: challenge script host missing", ErrExtraction)
	}

	return params, nil
}

// propsObject locates the JSON object assigned to the marker identifier in
// script text and returns it with balanced braces.
func propsObject(text string) (json.RawMessage, bool) {
	idx := strings.Index(text, markerProps)
	if idx < 0 {
		return nil, false
	}

	start := strings.IndexByte(text[idx:], '{')
	if start < 0 {
		return nil, false
	}
	start += idx

	// Walk the object string-aware: braces inside JSON strings don't count.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				raw := json.RawMessage(text[start : i+1])
				if !json.Valid(raw) {
					return nil, false
				}
				return raw, true
			}
		}
	}
	return nil, false
}

// AdaptExtraction normalizes externally supplied challenge parameters.
// Upstream extractors emit either a two-element array ["<props>", "<host>"]
// or an object with a "props" or "goku_props" key plus "host". The props
// element may itself be a JSON object or a string holding one.
func AdaptExtraction(raw json.RawMessage) (*Params, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err == nil {
		if len(pair) < 2 {
			return nil, fmt.Errorf("%w: pair shape needs props and host", ErrExtraction)
		}
		props, err := normalizeProps(pair[0])
		if err != nil {
			return nil, err
		}
		var host string
		if err := json.Unmarshal(pair[1], &host); err != nil || host == "" {
			return nil, fmt.Errorf("%w: pair host is not a string", ErrExtraction)
		}
		return &Params{Props: props, Host: host}, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: unrecognized shape", ErrExtraction)
	}

	propsRaw, ok := m["goku_props"]
	if !ok {
		propsRaw, ok = m["props"]
	}
	if !ok {
		return nil, fmt.Errorf("%w: map shape missing props", ErrExtraction)
	}
	props, err := normalizeProps(propsRaw)
	if err != nil {
		return nil, err
	}

	hostRaw, ok := m["host"]
	if !ok {
		return nil, fmt.Errorf("%w: map shape missing host", ErrExtraction)
	}
	var host string
	if err := json.Unmarshal(hostRaw, &host); err != nil || host == "" {
		return nil, fmt.Errorf("%w: map host is not a string", ErrExtraction)
	}

	return &Params{Props: props, Host: host}, nil
}

// normalizeProps unwraps a props element that may be a JSON object or a
// string containing one.
func normalizeProps(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty props", ErrExtraction)
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: props string is malformed", ErrExtraction)
		}
		trimmed = bytes.TrimSpace([]byte(s))
	}

	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: props is not a JSON object", ErrExtraction)
	}
	return json.RawMessage(trimmed), nil
}
