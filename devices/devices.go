package devices

import "strings"

// DeviceInfo is the already-classified description of the client that made a
// request. The HTTP layer populates it before the session core ever sees it;
// the core treats it as opaque metadata.
type DeviceInfo struct {
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	Device    string `json:"device,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Classifier turns a raw user-agent string into device/browser/os labels.
// Implementations are expected to be cheap and side-effect free.
type Classifier interface {
	Classify(userAgent string) (device, browser, os string)
}

// UserAgentClassifier is a heuristic Classifier based on well-known
// user-agent substrings. It is deliberately coarse: the labels feed the
// suspicious-activity heuristics, not anything security critical.
type UserAgentClassifier struct{}

var _ Classifier = UserAgentClassifier{}

func NewUserAgentClassifier() UserAgentClassifier {
	return UserAgentClassifier{}
}

func (UserAgentClassifier) Classify(userAgent string) (string, string, string) {
	ua := strings.ToLower(userAgent)
	return classifyDevice(ua), classifyBrowser(ua), classifyOS(ua)
}

func classifyDevice(ua string) string {
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "Tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "Mobile"
	case ua == "":
		return "Unknown"
	}
	return "Desktop"
}

func classifyBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "safari"):
		return "Safari"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	}
	return "Unknown"
}

func classifyOS(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return "iOS"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	}
	return "Unknown"
}
