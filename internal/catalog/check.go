package catalog

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// Checker performs structural validation of candidate records before any
// network liveness check is attempted.
type Checker struct {
	validate *validator.Validate
}

// NewChecker builds a Checker with the record rules registered.
func NewChecker() *Checker {
	v := validator.New()
	v.RegisterStructValidation(recordLevel, CandidateRecord{})
	v.RegisterStructValidation(sourceLevel, Source{})
	return &Checker{validate: v}
}

// Check returns nil when the record is well formed.
func (c *Checker) Check(rec CandidateRecord) error {
	if err := c.validate.Struct(rec); err != nil {
		return fmt.Errorf("check record %q: %w", rec.Label(), err)
	}
	return nil
}

func recordLevel(sl validator.StructLevel) {
	rec, ok := sl.Current().Interface().(CandidateRecord)
	if !ok {
		return
	}
	if rec.ResourceCount() == 0 {
		sl.ReportError(rec.ISO, "ISO", "ISO", "resources", "")
	}
}

func sourceLevel(sl validator.StructLevel) {
	src, ok := sl.Current().Interface().(Source)
	if !ok || src.Kind != SourceWeb {
		return
	}
	if !IsHTTPURL(src.URL) {
		sl.ReportError(src.URL, "URL", "URL", "httpurl", "")
	}
}

// IsHTTPURL reports whether raw is an absolute http(s) URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}
