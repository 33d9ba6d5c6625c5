package comment

import (
	"math"
	"sort"
	"strings"
)

// Origin tells how a comment's timestamp was obtained.
type Origin int

const (
	// Freeform comments carry a single timestamp somewhere in their text.
	Freeform Origin = iota
	// Structured comments come from a [YouTubeDanmaku] block.
	Structured
)

func (o Origin) String() string {
	if o == Structured {
		return "structured"
	}
	return "freeform"
}

// MarshalText keeps the origin readable in YAML and JSON.
func (o Origin) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Origin) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "structured", "yd":
		*o = Structured
	default:
		*o = Freeform
	}
	return nil
}

// Comment is an immutable time-coded overlay comment.
type Comment struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Time   int    `json:"time" yaml:"time"`
	Text   string `json:"text" yaml:"text"`
	Origin Origin `json:"origin" yaml:"origin"`
}

// Valid reports whether the comment may enter a schedule.
func (c Comment) Valid() bool {
	return c.Time >= 0 && strings.TrimSpace(c.Text) != ""
}

// FromSeconds builds a comment from a fractional timestamp, truncating to the
// second. Negative or non-finite timestamps are rejected.
func FromSeconds(sec float64, text string, origin Origin) (Comment, bool) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec < 0 {
		return Comment{}, false
	}
	c := Comment{Time: int(math.Floor(sec)), Text: strings.TrimSpace(text), Origin: origin}
	return c, c.Valid()
}

// Ordered drops malformed comments and returns the rest sorted by time.
// Comments sharing a second keep their input order.
func Ordered(in []Comment) []Comment {
	out := make([]Comment, 0, len(in))
	for _, c := range in {
		if c.Valid() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
