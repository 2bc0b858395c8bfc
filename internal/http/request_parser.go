// Package http provides HTTP server and handler implementations.
//
// This file implements request body parsing. Bodies may be JSON objects or
// form-encoded; amounts are always kept as the literal text the client sent.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"fintrack/internal/core"
)

// maxBodyBytes caps request bodies; a transaction is a few hundred bytes.
const maxBodyBytes = 64 << 10

var (
	// ErrMalformedBody means the body could not be decoded at all.
	ErrMalformedBody = errors.New("malformed request body")
	// ErrBodyTooLarge means the body exceeded maxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")
)

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]json.RawMessage
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var maxErr *http.MaxBytesError
	if errors.As(p.err, &maxErr) {
		p.err = fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
	}
	return p
}

// Parse decodes the body once; later calls return the first result.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.looksLikeJSON(trimmed) {
		if trimmed[0] != '{' {
			p.err = fmt.Errorf("%w: expected a JSON object", ErrMalformedBody)
			return p.err
		}
		if err := json.Unmarshal(trimmed, &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(string(p.body))
	if err != nil {
		p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
		return p.err
	}
	p.formData = form
	return nil
}

func (p *RequestBodyParser) looksLikeJSON(trimmed []byte) bool {
	if mt, _, err := mime.ParseMediaType(p.contentType); err == nil {
		if mt == "application/json" || strings.HasSuffix(mt, "+json") {
			return true
		}
		if mt == "application/x-www-form-urlencoded" {
			return false
		}
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// Get returns a field as text. JSON strings are unquoted, JSON numbers are
// returned exactly as written, anything else reads as empty.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		return sanitizeInput(jsonText(p.jsonData[key]))
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func jsonText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case c == '-' || (c >= '0' && c <= '9'):
		return string(raw)
	default:
		return ""
	}
}

// TransactionInput extracts the fields of a new transaction.
func (p *RequestBodyParser) TransactionInput() core.NewTransactionInput {
	return core.NewTransactionInput{
		Title:    p.Get("title"),
		Amount:   p.Get("amount"),
		Category: p.Get("category"),
		Type:     p.Get("type"),
	}
}

// ParseTransactionInput reads and decodes a create request.
func ParseTransactionInput(w http.ResponseWriter, r *http.Request) (core.NewTransactionInput, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return core.NewTransactionInput{}, err
	}
	return p.TransactionInput(), nil
}
