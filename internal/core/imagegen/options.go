package imagegen

import "strings"

const DefaultSize = "1024x1024"

var supportedSizes = map[string]bool{
	"1024x1024": true,
	"1024x1536": true,
	"1536x1024": true,
}

// SupportedSizes lists the output sizes accepted by the API.
func SupportedSizes() []string {
	return []string{"1024x1024", "1024x1536", "1536x1024"}
}

// IsSupportedSize reports whether size is one of SupportedSizes.
func IsSupportedSize(size string) bool {
	return supportedSizes[size]
}

// NormalizeSize cleans up sizes typed by hand ("1024", "1024×1536").
// Unknown values fall back to DefaultSize.
func NormalizeSize(size string) string {
	s := strings.ToLower(strings.TrimSpace(size))
	s = strings.ReplaceAll(s, "×", "x")
	s = strings.ReplaceAll(s, " ", "")
	if s == "1024" {
		return DefaultSize
	}
	if supportedSizes[s] {
		return s
	}
	return DefaultSize
}

// GenerateQuality maps the public quality tier to the provider value.
func GenerateQuality(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "hd", "high":
		return "high"
	case "low":
		return "low"
	case "medium", "standard", "":
		return "medium"
	default:
		return "auto"
	}
}

// EditQuality maps the edit quality tier to the provider value.
// Edits default to "auto" rather than "medium".
func EditQuality(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "hd", "high":
		return "high"
	case "standard", "medium":
		return "medium"
	case "low":
		return "low"
	default:
		return "auto"
	}
}

// NormalizeBackground returns auto, transparent or opaque.
func NormalizeBackground(background string) string {
	switch b := strings.ToLower(strings.TrimSpace(background)); b {
	case "transparent", "opaque":
		return b
	default:
		return "auto"
	}
}
