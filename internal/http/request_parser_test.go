package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestBodyParser_Get(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		key         string
		want        string
		wantJSON    bool
	}{
		{"json string", "application/json", `{"amount":"12.34"}`, "amount", "12.34", true},
		{"json number keeps literal", "application/json", `{"amount":0.1}`, "amount", "0.1", true},
		{"json number with exponent", "application/json", `{"amount":1e2}`, "amount", "1e2", true},
		{"json null", "application/json", `{"amount":null}`, "amount", "", true},
		{"json bool", "application/json", `{"amount":true}`, "amount", "", true},
		{"json object", "application/json", `{"amount":{"v":1}}`, "amount", "", true},
		{"json missing key", "application/json", `{"title":"x"}`, "amount", "", true},
		{"json unknown fields ignored", "application/json", `{"title":"x","extra":[1]}`, "title", "x", true},
		{"json sniffed without header", "", `{"title":"Rent"}`, "title", "Rent", true},
		{"json charset param", "application/json; charset=utf-8", `{"title":"Rent"}`, "title", "Rent", true},
		{"form", "application/x-www-form-urlencoded", "title=Rent&amount=900", "amount", "900", false},
		{"form trims", "application/x-www-form-urlencoded", "title=++Rent++", "title", "Rent", false},
		{"control chars stripped", "application/json", `{"title":"Re\u0000nt"}`, "title", "Rent", true},
		{"empty body", "", "", "title", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			p := NewRequestBodyParser(httptest.NewRecorder(), req)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := p.Get(tt.key); got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON() = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
		})
	}
}

func TestRequestBodyParser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"array", `[{"title":"x"}]`, ErrMalformedBody},
		{"bad json", `{"title":`, ErrMalformedBody},
		{"too large", `{"title":"` + strings.Repeat("x", maxBodyBytes+1) + `"}`, ErrBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			p := NewRequestBodyParser(httptest.NewRecorder(), req)

			err := p.Parse()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			if again := p.Parse(); !errors.Is(again, tt.wantErr) {
				t.Fatalf("second Parse() error = %v", again)
			}
		})
	}
}

func TestParseTransactionInput(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/transactions",
		strings.NewReader(`{"title":" Salary ","amount":2500,"category":"Work","type":"INCOME"}`))
	req.Header.Set("Content-Type", "application/json")

	in, err := ParseTransactionInput(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("ParseTransactionInput() error = %v", err)
	}
	if in.Title != "Salary" || in.Amount != "2500" || in.Category != "Work" || in.Type != "INCOME" {
		t.Fatalf("input = %+v", in)
	}
	if _, err := in.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{" 42 ", 42, false},
		{"-3", -3, false},
		{"abc", 0, true},
		{"1.5", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseID(%q) = %d, %v", tt.in, got, err)
		}
	}
}
