package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLValidator checks the API base URL and syndication feed URLs before any
// request is made against them.
type URLValidator struct {
	// AllowLocalhost determines if localhost URLs are permitted
	AllowLocalhost bool
	// AllowPrivateIPs determines if private IP addresses are permitted
	AllowPrivateIPs bool
	MaxLength       int
}

// NewURLValidator creates a validator that blocks local and private hosts.
func NewURLValidator() *URLValidator {
	return &URLValidator{
		AllowLocalhost:  false,
		AllowPrivateIPs: false,
		MaxLength:       2048,
	}
}

// NewPermissiveURLValidator allows local development servers.
func NewPermissiveURLValidator() *URLValidator {
	return &URLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

// ForLocal picks the permissive validator when allowLocal is set.
func ForLocal(allowLocal bool) *URLValidator {
	if allowLocal {
		return NewPermissiveURLValidator()
	}
	return NewURLValidator()
}

// ValidateAndNormalize validates a URL and returns the normalized version.
// A missing scheme defaults to https.
func (v *URLValidator) ValidateAndNormalize(input string) (string, error) {
	parsedURL, err := v.parse(input)
	if err != nil {
		return "", err
	}
	return parsedURL.String(), nil
}

// ValidateBaseURL validates an API base URL. Query strings and fragments are
// rejected because endpoint paths are appended to it; a trailing slash is
// dropped.
func (v *URLValidator) ValidateBaseURL(input string) (string, error) {
	parsedURL, err := v.parse(input)
	if err != nil {
		return "", err
	}
	if parsedURL.RawQuery != "" || parsedURL.Fragment != "" {
		return "", fmt.Errorf("base URL must not carry a query or fragment")
	}
	return strings.TrimRight(parsedURL.String(), "/"), nil
}

func (v *URLValidator) parse(input string) (*url.URL, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}
	if len(input) > v.MaxLength {
		return nil, fmt.Errorf("URL too long (max %d characters)", v.MaxLength)
	}

	if strings.ContainsAny(input, "<>\"'` ") {
		return nil, fmt.Errorf("URL contains invalid characters")
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}

	parsedURL, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL must use http or https protocol")
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("URL must have a valid hostname")
	}

	if err := v.validateHostSecurity(parsedURL.Hostname()); err != nil {
		return nil, err
	}

	if strings.Contains(parsedURL.Path, "..") {
		return nil, fmt.Errorf("directory traversal patterns not allowed in URL path")
	}

	return parsedURL, nil
}

func (v *URLValidator) validateHostSecurity(hostname string) error {
	if !v.AllowLocalhost && isLocalhost(hostname) {
		return fmt.Errorf("localhost URLs are not permitted")
	}

	if !v.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("private IP addresses are not permitted")
		}
	}

	if ip := net.ParseIP(hostname); ip != nil && (ip.IsUnspecified() || ip.Equal(net.IPv4bcast)) {
		return fmt.Errorf("unroutable address %s", hostname)
	}

	return nil
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}

var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16", // link-local
	"127.0.0.0/8",
	"fc00::/7",
	"fe80::/10",
)

func isPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}
