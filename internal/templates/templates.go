// Package templates renders the HTML pages shown to the user agent
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed html/*.html
var content embed.FS

// Templates manages the HTML templates
type Templates struct {
	error *template.Template
}

// LoadTemplates loads and parses all HTML templates
func LoadTemplates() (*Templates, error) {
	t := &Templates{}
	var err error

	if t.error, err = template.ParseFS(content, "html/error.html", "html/layout.html"); err != nil {
		return nil, fmt.Errorf("parsing error page: %w", err)
	}

	return t, nil
}

// ErrorData holds data for the error page
type ErrorData struct {
	Title    string
	Message  string
	RetryURL string
}

// TemplateError wraps a failed template execution
type TemplateError struct {
	Cause   error
	Message string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// RenderError renders the error page with the given status. Nothing is written
// to w if the template fails.
func (t *Templates) RenderError(w http.ResponseWriter, status int, data ErrorData) error {
	var buf bytes.Buffer
	if err := t.error.ExecuteTemplate(&buf, "layout", data); err != nil {
		return &TemplateError{Cause: err, Message: "failed to render template"}
	}

	sw := NewSafeWriter(w)
	sw.SetStatusCode(status)
	_, err := sw.Write(buf.Bytes())
	return err
}

// SafeWriter writes HTML headers exactly once before the first body write
type SafeWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	written     bool
}

// NewSafeWriter wraps w with a default status of 200
func NewSafeWriter(w http.ResponseWriter) *SafeWriter {
	return &SafeWriter{ResponseWriter: w, status: http.StatusOK}
}

// SetStatusCode sets the status sent with the headers
func (sw *SafeWriter) SetStatusCode(code int) {
	sw.status = code
}

// WriteHeader sends headers once; later calls are ignored
func (sw *SafeWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.wroteHeader = true
	h := sw.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *SafeWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(sw.status)
	}
	sw.written = true
	return sw.ResponseWriter.Write(b)
}

// Written reports whether any body bytes were written
func (sw *SafeWriter) Written() bool {
	return sw.written
}
