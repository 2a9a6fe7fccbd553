package session

import "strings"

// DeviceInfo is a coarse classification of a user agent. Best effort for
// display in "active sessions" lists; never an input to security decisions.
type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

// ClassifyUserAgent derives browser, OS, and device class from a raw
// user-agent string via substring matching.
func ClassifyUserAgent(userAgent string) DeviceInfo {
	ua := strings.ToLower(userAgent)

	info := DeviceInfo{
		Browser: "Unknown",
		OS:      "Unknown",
		Device:  "desktop",
	}

	// Order matters: Edge and Opera embed "chrome", Chrome embeds "safari"
	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge"):
		info.Browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		info.Browser = "Opera"
	case strings.Contains(ua, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "safari"):
		info.Browser = "Safari"
	case strings.Contains(ua, "msie"), strings.Contains(ua, "trident"):
		info.Browser = "Internet Explorer"
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		info.OS = "iOS"
	case strings.Contains(ua, "mac os x"), strings.Contains(ua, "macintosh"):
		info.OS = "macOS"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		info.Device = "tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "iphone"),
		strings.Contains(ua, "android"):
		info.Device = "mobile"
	}

	return info
}
