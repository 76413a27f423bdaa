package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts a YouTube contentDetails duration (e.g. "PT1H2M3S") into seconds.
//
// ok is false when the value does not look like an ISO-8601 time duration. A bare "PT" is zero.
func ParseISODuration(s string) (seconds int, ok bool) {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	parts := [3]int{}
	for i := range 3 {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		parts[i] = n
	}
	return parts[0]*3600 + parts[1]*60 + parts[2], true
}

// FormatISODuration renders an ISO-8601 duration as HH:MM:SS, or MM:SS when under an hour.
//
// Empty input yields "" and anything unparsable is returned unchanged.
func FormatISODuration(s string) string {
	if s == "" {
		return ""
	}
	secs, ok := ParseISODuration(s)
	if !ok {
		return s
	}
	return FormatClock(secs)
}

// FormatClock renders seconds as HH:MM:SS when hours > 0, MM:SS otherwise.
func FormatClock(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// TimeRemaining describes how long is left until expiry as "2h 5m", "42m" or "Expired".
func TimeRemaining(now, expiry time.Time) string {
	if expiry.IsZero() || !now.Before(expiry) {
		return "Expired"
	}
	d := expiry.Sub(now)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// SplitTags splits a comma separated tag string, trimming blanks.
func SplitTags(s string) []string {
	var tags []string
	for t := range strings.SplitSeq(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags is the inverse of [SplitTags].
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// CompactNumber renders large counters as 1.2K, 3.4M, 5.6B.
func CompactNumber(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1e9)) + "B"
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1e6)) + "M"
	case n >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1e3)) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// HumanBytes renders a byte size with a binary unit suffix.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
