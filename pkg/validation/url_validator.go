package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLValidator checks backend endpoint URLs at startup
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator creates a validator accepting any http or https host
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateEndpoint reports whether endpoint is an absolute URL the gateway may call
func (v *URLValidator) ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("endpoint URL cannot be empty")
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return fmt.Errorf("endpoint URL scheme %q not allowed", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("endpoint URL %q has no host", endpoint)
	}

	if parsedURL.User != nil {
		return fmt.Errorf("endpoint URL must not embed credentials")
	}

	if !v.isHostAllowed(parsedURL.Hostname()) {
		return fmt.Errorf("endpoint host %q not allowed", parsedURL.Hostname())
	}

	return nil
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed returns true if no host restrictions are set
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
