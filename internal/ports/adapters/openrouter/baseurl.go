package openrouter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultBaseURL  = "https://openrouter.ai"
	completionsPath = "/api/v1/chat/completions"
)

var builtinHosts = []string{"openrouter.ai", "api.openrouter.ai"}

// EndpointError reports an OPENROUTER_BASE_URL that the adapter refuses to
// send the API key to.
type EndpointError struct {
	BaseURL string
	Reason  string
	Err     error
}

func (e *EndpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid OPENROUTER_BASE_URL %q: %v", e.BaseURL, e.Err)
	}
	return fmt.Sprintf("invalid OPENROUTER_BASE_URL %q: %s", e.BaseURL, e.Reason)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// trimBaseURL applies the default and strips trailing slashes.
func trimBaseURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return defaultBaseURL
	}
	return raw
}

func completionsURL(base string) string {
	return trimBaseURL(base) + completionsPath
}

// ValidateBaseURL checks that the API key would only travel over https to a
// host in the allow list. An empty allow list means the public OpenRouter
// hosts.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	base := trimBaseURL(baseURL)
	reject := func(reason string) error { return &EndpointError{BaseURL: base, Reason: reason} }

	u, err := url.Parse(base)
	switch {
	case err != nil:
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return &EndpointError{BaseURL: base, Err: err}
	case !u.IsAbs() || u.Hostname() == "":
		return reject("absolute URL with host is required")
	case u.User != nil:
		return reject("userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "" || u.ForceQuery:
		return reject("query and fragment are not allowed")
	case !strings.EqualFold(u.Scheme, "https"):
		return reject("https is required")
	}

	host := strings.ToLower(u.Hostname())
	if !hostAllowed(host, allowedHosts) {
		return reject(fmt.Sprintf("host %q is not in OPENROUTER_ALLOWED_HOSTS", host))
	}
	return nil
}

func hostAllowed(host string, allowedHosts []string) bool {
	allowed := cleanHosts(allowedHosts)
	if len(allowed) == 0 {
		allowed = builtinHosts
	}
	for _, h := range allowed {
		if h == host {
			return true
		}
	}
	return false
}

// cleanHosts accepts bare hosts as well as URLs or host:port pairs.
func cleanHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.ToLower(strings.TrimSpace(h))
		if i := strings.Index(h, "://"); i >= 0 {
			h = h[i+3:]
		}
		h, _, _ = strings.Cut(h, "/")
		h, _, _ = strings.Cut(h, ":")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
