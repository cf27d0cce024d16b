package leaseid

import (
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"strings"
)

const fingerprintBytes = 4

// Fingerprint is a short, diagnostic digest of the client environment.
type Fingerprint string

// NewFingerprint hashes the given attributes into a Fingerprint. Callers must
// only pass stable, non-identifying values (OS family, architecture, app name).
func NewFingerprint(attrs ...string) Fingerprint {
	h := sha256.New()
	for _, a := range attrs {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(a))))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return Fingerprint(hex.EncodeToString(sum[:fingerprintBytes]))
}

// LocalFingerprint fingerprints the running process environment.
func LocalFingerprint(app string) Fingerprint {
	return NewFingerprint(runtime.GOOS, runtime.GOARCH, app)
}

// LocalDeviceLabel returns a human-readable label for the running process,
// e.g. "linux/amd64 (acme-desktop)".
func LocalDeviceLabel(app string) string {
	label := runtime.GOOS + "/" + runtime.GOARCH
	if app = strings.TrimSpace(app); app != "" {
		label += " (" + app + ")"
	}
	return label
}

// LabelFromUserAgent derives a best-effort "OS, browser" label from an HTTP
// User-Agent header. Unknown families are reported as "unknown".
func LabelFromUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	return osFamily(ua) + ", " + browserFamily(ua)
}

func osFamily(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "iOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "CrOS"):
		return "ChromeOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "unknown"
	}
}

// Order matters: Edge and Opera embed "Chrome", Chrome embeds "Safari".
func browserFamily(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/"):
		return "Edge"
	case strings.Contains(ua, "OPR/"):
		return "Opera"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "CriOS/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return "unknown"
	}
}
