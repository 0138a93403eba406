package validators

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	hostCanonical = "bilibili.com"
	hostWWW       = "www.bilibili.com"
	hostMobile    = "m.bilibili.com"
	hostShortLink = "b23.tv"
)

// BilibiliValidator validates bilibili video links: the canonical site,
// the mobile subdomain and the b23.tv short-link domain.
type BilibiliValidator struct {
	// videoPathPattern matches /video/BV + 10 alphanumerics or /video/av + digits
	videoPathPattern *regexp.Regexp
	// shortTokenPattern matches the path token of a b23.tv link
	shortTokenPattern *regexp.Regexp
}

// NewBilibiliValidator creates a new bilibili URL validator
func NewBilibiliValidator() *BilibiliValidator {
	return &BilibiliValidator{
		videoPathPattern:  regexp.MustCompile(`^/video/(BV[0-9A-Za-z]{10}|av[0-9]+)/?$`),
		shortTokenPattern: regexp.MustCompile(`^/([0-9A-Za-z]+)/?$`),
	}
}

// SourceType returns the source type for this validator
func (v *BilibiliValidator) SourceType() SourceType {
	return SourceBilibili
}

// CanHandle returns true if the URL host belongs to bilibili
func (v *BilibiliValidator) CanHandle(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}

	switch strings.ToLower(parsed.Hostname()) {
	case hostCanonical, hostWWW, hostMobile, hostShortLink:
		return true
	}
	return false
}

// Validate validates a bilibili URL and extracts the video or short-link ID
func (v *BilibiliValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return v.invalid(rawURL, "invalid URL format")
	}

	// Scheme is lower-cased by url.Parse; only http and https are links
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return v.invalid(rawURL, "invalid URL scheme")
	}

	if parsed.User != nil {
		return v.invalid(rawURL, "credentials are not allowed in the URL")
	}

	host := strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		return v.invalid(rawURL, "unexpected port")
	}

	switch host {
	case hostCanonical, hostWWW, hostMobile:
		m := v.videoPathPattern.FindStringSubmatch(parsed.EscapedPath())
		if m == nil {
			return v.invalid(rawURL, "not a bilibili video link")
		}
		videoID := m[1]
		return ValidationResult{
			Valid:      true,
			SourceType: SourceBilibili,
			MediaID:    videoID,
			MediaType:  MediaTypeVideo,
			URL:        rawURL,
			Canonical:  fmt.Sprintf("https://www.bilibili.com/video/%s", videoID),
		}

	case hostShortLink:
		m := v.shortTokenPattern.FindStringSubmatch(parsed.EscapedPath())
		if m == nil {
			return v.invalid(rawURL, "short link has no token")
		}
		// Short links only resolve via redirect, which is the extractor's job
		return ValidationResult{
			Valid:      true,
			SourceType: SourceBilibili,
			MediaID:    m[1],
			MediaType:  MediaTypeShortLink,
			URL:        rawURL,
			Canonical:  "https://" + hostShortLink + "/" + m[1],
		}
	}

	return v.invalid(rawURL, "not a bilibili URL")
}

func (v *BilibiliValidator) invalid(rawURL, reason string) ValidationResult {
	return ValidationResult{
		Valid:      false,
		SourceType: SourceBilibili,
		URL:        rawURL,
		Error:      reason,
	}
}
