package comment

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoTimestamp = errors.New("no usable timestamp")

var (
	timestampRe = regexp.MustCompile(`\b\d{1,2}:\d{1,2}:\d{2}\b|\b\d{1,2}:\d{2}\b`)
	headerRe    = regexp.MustCompile(`(?i)^\[youtube\s*danmaku\]$`)
	ydLineRe    = regexp.MustCompile(`^(\d{1,2}:\d{1,2}:\d{2}|\d{1,2}:\d{2})\s+(.+)$`)
	footerRe    = regexp.MustCompile(`(?i)^(\*|This is a Youtube Danmaku)`)
	leadSepRe   = regexp.MustCompile(`^[\-–—:：\s]+`)
)

// ParseClock converts "m:ss" or "h:mm:ss" into seconds.
func ParseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		if p == "" || len(p) > 2 {
			return 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		nums[i] = n
	}
	if len(nums) == 3 {
		h, m, sec := nums[0], nums[1], nums[2]
		if len(parts[2]) != 2 || m >= 60 || sec >= 60 {
			return 0, false
		}
		return h*3600 + m*60 + sec, true
	}
	m, sec := nums[0], nums[1]
	if len(parts[1]) != 2 || m >= 60 || sec >= 60 {
		return 0, false
	}
	return m*60 + sec, true
}

// FormatClock renders seconds as "m:ss", or "h:mm:ss" past the hour.
func FormatClock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Extract pulls a time-coded comment out of raw comment text. A
// [YouTubeDanmaku] block yields a structured comment; otherwise the text must
// contain exactly one timestamp.
func Extract(raw string) (Comment, error) {
	if c, ok := extractBlock(raw); ok {
		return c, nil
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Comment{}, ErrNoTimestamp
	}
	hits := timestampRe.FindAllString(text, -1)
	if len(hits) != 1 {
		return Comment{}, ErrNoTimestamp
	}
	sec, ok := ParseClock(hits[0])
	if !ok {
		return Comment{}, ErrNoTimestamp
	}
	content := strings.TrimSpace(strings.Replace(text, hits[0], "", 1))
	content = leadSepRe.ReplaceAllString(content, "")
	if headerRe.MatchString(content) || footerRe.MatchString(content) {
		return Comment{}, ErrNoTimestamp
	}
	if content == "" {
		content = hits[0]
	}
	return Comment{Time: sec, Text: content, Origin: Freeform}, nil
}

func extractBlock(raw string) (Comment, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	lines := strings.Split(raw, "\n")
	if !headerRe.MatchString(strings.TrimSpace(lines[0])) {
		return Comment{}, false
	}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "*") {
			continue
		}
		m := ydLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sec, ok := ParseClock(m[1])
		if !ok {
			continue
		}
		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}
		return Comment{Time: sec, Text: text, Origin: Structured}, true
	}
	return Comment{}, false
}
