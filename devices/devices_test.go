package devices_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-service/devices"
)

func TestClassify(t *testing.T) {
	classifier := devices.NewUserAgentClassifier()

	tests := []struct {
		name      string
		userAgent string
		device    string
		browser   string
		os        string
	}{
		{
			name:      "chrome on windows desktop",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			device:    "Desktop",
			browser:   "Chrome",
			os:        "Windows",
		},
		{
			name:      "safari on iphone",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			device:    "Mobile",
			browser:   "Safari",
			os:        "iOS",
		},
		{
			name:      "firefox on linux",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
			device:    "Desktop",
			browser:   "Firefox",
			os:        "Linux",
		},
		{
			name:      "ipad tablet",
			userAgent: "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			device:    "Tablet",
			browser:   "Safari",
			os:        "iOS",
		},
		{
			name:      "empty user agent",
			userAgent: "",
			device:    "Unknown",
			browser:   "Unknown",
			os:        "Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, browser, os := classifier.Classify(tt.userAgent)
			require.Equal(t, tt.device, device)
			require.Equal(t, tt.browser, browser)
			require.Equal(t, tt.os, os)
		})
	}
}
