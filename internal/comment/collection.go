package comment

import (
	"strconv"

	"github.com/google/uuid"
)

// Collection gathers the comments discovered for one video, ignoring any it
// has already seen. It is not safe for concurrent use.
type Collection struct {
	video string
	seen  map[string]bool
	items []Comment
}

func NewCollection(video string) *Collection {
	return &Collection{video: video, seen: make(map[string]bool)}
}

func (c *Collection) Video() string { return c.video }

// Add keeps the valid comments not seen before and returns those it kept.
// Comments without an ID get one derived from their time and text, so the
// same comment read twice is only kept once.
func (c *Collection) Add(in ...Comment) []Comment {
	var added []Comment
	for _, x := range in {
		if !x.Valid() {
			continue
		}
		if x.ID == "" {
			x.ID = DerivedID(x)
		}
		if c.seen[x.ID] {
			continue
		}
		c.seen[x.ID] = true
		c.items = append(c.items, x)
		added = append(added, x)
	}
	return added
}

// Len is the number of comments loaded.
func (c *Collection) Len() int { return len(c.items) }

// Items returns a copy of the collected comments in arrival order.
func (c *Collection) Items() []Comment {
	return append([]Comment(nil), c.items...)
}

// DerivedID is a stable ID for a comment that came without one.
func DerivedID(c Comment) string {
	name := strconv.Itoa(c.Time) + "\x00" + c.Origin.String() + "\x00" + c.Text
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
