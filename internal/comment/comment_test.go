package comment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedFiltersAndKeepsTies(t *testing.T) {
	in := []Comment{
		{Time: 12, Text: "c"},
		{Time: 10, Text: "a"},
		{Time: -1, Text: "negative"},
		{Time: 3, Text: "   "},
		{Time: 10, Text: "b"},
		{Time: 0, Text: "zero"},
	}

	got := Ordered(in)

	texts := make([]string, len(got))
	for i, c := range got {
		texts[i] = c.Text
	}
	assert.Equal(t, []string{"zero", "a", "b", "c"}, texts)
}

func TestFromSeconds(t *testing.T) {
	tests := []struct {
		name string
		sec  float64
		text string
		ok   bool
		want int
	}{
		{"truncates", 10.9, "hi", true, 10},
		{"zero", 0, "hi", true, 0},
		{"negative", -0.5, "hi", false, 0},
		{"nan", math.NaN(), "hi", false, 0},
		{"inf", math.Inf(1), "hi", false, 0},
		{"empty text", 4, "  ", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := FromSeconds(tt.sec, tt.text, Freeform)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, c.Time)
			}
		})
	}
}

func TestParseFileEntries(t *testing.T) {
	data := []byte(`
- {time: 10, text: a}
- {time: 10.7, text: b, origin: structured}
- {time: -3, text: dropped}
- {raw: "1:05 nice riff"}
- {raw: "no time here"}
`)
	got, skipped, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, got, 3)
	assert.Equal(t, Comment{Time: 10, Text: "b", Origin: Structured}, got[1])
	assert.Equal(t, 65, got[2].Time)
	assert.Equal(t, "nice riff", got[2].Text)
}

func TestParseJSON(t *testing.T) {
	got, skipped, err := Parse([]byte(`[{"time": 3, "text": "json works", "origin": "structured"}]`))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, got, 1)
	assert.Equal(t, Structured, got[0].Origin)
}
