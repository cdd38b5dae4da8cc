package fipe

import (
	"bytes"
	"encoding/json"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sanitizeJSON trims the garbage the upstream occasionally wraps around its
// JSON payloads: a BOM, stray whitespace, and HTML or log noise before the
// first bracket or after the last one. An empty or unrecognizable body comes
// back empty.
func sanitizeJSON(body []byte) []byte {
	body = bytes.TrimPrefix(body, utf8BOM)
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	bracket := bytes.IndexByte(body, '[')
	brace := bytes.IndexByte(body, '{')

	switch {
	case bracket != -1 && (brace == -1 || bracket < brace):
		body = body[bracket:]
		if end := bytes.LastIndexByte(body, ']'); end != -1 {
			body = body[:end+1]
		}
	case brace != -1:
		body = body[brace:]
		if end := bytes.LastIndexByte(body, '}'); end != -1 {
			body = body[:end+1]
		}
	default:
		return nil
	}
	return body
}

// apiError is the upstream's in-band error envelope, e.g.
// {"erro":"nadaencontrado"}.
type apiError struct {
	Erro string `json:"erro"`
}

// emptyResult reports whether the sanitized body encodes "no data": an empty
// body or the known error envelope.
func emptyResult(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	if body[0] != '{' {
		return false
	}
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return false
	}
	return e.Erro != ""
}
