package sim

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/settings"
)

func run(t *testing.T, comments []comment.Comment, d time.Duration, events ...Event) Report {
	t.Helper()
	rep, err := Run(Config{
		Comments: comments,
		Settings: settings.Default(),
		Duration: d,
		Events:   events,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return rep
}

func TestRunEmitsEachCommentOnce(t *testing.T) {
	rep := run(t, []comment.Comment{
		{Time: 1, Text: "a"},
		{Time: 2, Text: "b"},
		{Time: 2, Text: "c"},
		{Time: 4, Text: "d"},
		{Time: 30, Text: "never"},
	}, 6*time.Second)

	assert.Equal(t, 24, rep.Steps)
	assert.Equal(t, 4, rep.Spawned)
	assert.Equal(t, 4, rep.Live)
	assert.Equal(t, 5, rep.Scheduled)
	assert.NotContains(t, rep.FirstSpawn, "never")
	assert.GreaterOrEqual(t, rep.FirstSpawn["a"], time.Second)
	assert.LessOrEqual(t, rep.FirstSpawn["a"], 1500*time.Millisecond)
	assert.Equal(t, rep.FirstSpawn["b"], rep.FirstSpawn["c"])
}

func TestRunPauseAndPlay(t *testing.T) {
	comments := []comment.Comment{{Time: 1, Text: "a"}, {Time: 3, Text: "late"}}

	rep := run(t, comments, 6*time.Second, Event{At: 1500 * time.Millisecond, Action: ActPause})
	assert.Equal(t, 1, rep.Spawned)
	assert.Equal(t, 1, rep.Pins)
	assert.Equal(t, 1, rep.Live)

	rep = run(t, comments, 6*time.Second,
		Event{At: 1500 * time.Millisecond, Action: ActPause},
		Event{At: 3 * time.Second, Action: ActPlay},
	)
	assert.Equal(t, 2, rep.Spawned)
	assert.GreaterOrEqual(t, rep.FirstSpawn["late"], 4500*time.Millisecond)
}

func TestRunSeekBackReplays(t *testing.T) {
	rep := run(t, []comment.Comment{{Time: 1, Text: "a"}}, 6*time.Second,
		Event{At: 3 * time.Second, Action: ActSeek, To: 0.5},
	)
	assert.Equal(t, 2, rep.Spawned)
	assert.Equal(t, 1, rep.Removed)
	assert.Equal(t, 1, rep.Live)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent("pause@30s")
	require.NoError(t, err)
	assert.Equal(t, Event{At: 30 * time.Second, Action: ActPause}, ev)

	ev, err = ParseEvent("Seek@1m=12.5")
	require.NoError(t, err)
	assert.Equal(t, Event{At: time.Minute, Action: ActSeek, To: 12.5}, ev)

	for _, bad := range []string{"pause", "jump@1s", "seek@1s", "seek@1s=x", "play@-1s", "play@soon"} {
		_, err := ParseEvent(bad)
		assert.Error(t, err, bad)
	}
}
