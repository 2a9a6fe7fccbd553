package session

import "testing"

func TestClassifyUserAgent(t *testing.T) {
	tests := []struct {
		name        string
		userAgent   string
		wantBrowser string
		wantOS      string
		wantDevice  string
	}{
		{
			name:        "chrome on windows",
			userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			wantBrowser: "Chrome",
			wantOS:      "Windows",
			wantDevice:  "desktop",
		},
		{
			name:        "safari on iphone",
			userAgent:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			wantBrowser: "Safari",
			wantOS:      "iOS",
			wantDevice:  "mobile",
		},
		{
			name:        "firefox on linux",
			userAgent:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			wantBrowser: "Firefox",
			wantOS:      "Linux",
			wantDevice:  "desktop",
		},
		{
			name:        "edge on windows",
			userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			wantBrowser: "Edge",
			wantOS:      "Windows",
			wantDevice:  "desktop",
		},
		{
			name:        "opera on macos",
			userAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 OPR/106.0.0.0",
			wantBrowser: "Opera",
			wantOS:      "macOS",
			wantDevice:  "desktop",
		},
		{
			name:        "chrome on android phone",
			userAgent:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			wantBrowser: "Chrome",
			wantOS:      "Android",
			wantDevice:  "mobile",
		},
		{
			name:        "safari on ipad",
			userAgent:   "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			wantBrowser: "Safari",
			wantOS:      "iOS",
			wantDevice:  "tablet",
		},
		{
			name:        "internet explorer",
			userAgent:   "Mozilla/5.0 (Windows NT 10.0; WOW64; Trident/7.0; rv:11.0) like Gecko",
			wantBrowser: "Internet Explorer",
			wantOS:      "Windows",
			wantDevice:  "desktop",
		},
		{
			name:        "empty user agent",
			userAgent:   "",
			wantBrowser: "Unknown",
			wantOS:      "Unknown",
			wantDevice:  "desktop",
		},
		{
			name:        "unrecognized client",
			userAgent:   "curl/8.4.0",
			wantBrowser: "Unknown",
			wantOS:      "Unknown",
			wantDevice:  "desktop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ClassifyUserAgent(tt.userAgent)
			if info.Browser != tt.wantBrowser {
				t.Errorf("Browser = %q, want %q", info.Browser, tt.wantBrowser)
			}
			if info.OS != tt.wantOS {
				t.Errorf("OS = %q, want %q", info.OS, tt.wantOS)
			}
			if info.Device != tt.wantDevice {
				t.Errorf("Device = %q, want %q", info.Device, tt.wantDevice)
			}
		})
	}
}
