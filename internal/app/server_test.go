package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/settings"
	"danmakuflow/internal/store"
)

type rig struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
	clk *clock.Mock
}

func newRig(t *testing.T, seed ...comment.Comment) *rig {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	clk := clock.NewMock()
	srv := NewServer(Config{
		Settings:     settings.NewStore(settings.Default()),
		Store:        st,
		Seed:         seed,
		Clock:        clk,
		AwaitTimeout: 5 * time.Second,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		_ = st.Close()
	})
	return &rig{t: t, srv: srv, ts: ts, clk: clk}
}

func (rg *rig) do(method, path string, body any) (*http.Response, map[string]any) {
	rg.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(rg.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, rg.ts.URL+path, rd)
	require.NoError(rg.t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(rg.t, err)
	defer res.Body.Close()
	var out map[string]any
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(rg.t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res, out
}

func (rg *rig) createRoom(videoURL string) string {
	rg.t.Helper()
	res, out := rg.do(http.MethodPost, "/rooms", map[string]string{"videoUrl": videoURL})
	require.Equal(rg.t, http.StatusOK, res.StatusCode)
	id, _ := out["roomId"].(string)
	require.NotEmpty(rg.t, id)
	return id
}

func (rg *rig) stats(id string) map[string]any {
	rg.t.Helper()
	res, out := rg.do(http.MethodGet, "/rooms/"+id+"/stats", nil)
	require.Equal(rg.t, http.StatusOK, res.StatusCode)
	return out
}

func (rg *rig) dial(id string) *websocket.Conn {
	rg.t.Helper()
	url := "ws" + strings.TrimPrefix(rg.ts.URL, "http") + "/ws/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(rg.t, err)
	rg.t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads messages until one satisfies match.
func next(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(raw, &msg))
		if match(msg) {
			return msg
		}
	}
}

func op(name string) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["op"] == name }
}

func TestHealth(t *testing.T) {
	rg := newRig(t)
	res, err := http.Get(rg.ts.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCreateRoomLoadsSeed(t *testing.T) {
	rg := newRig(t,
		comment.Comment{Time: 3, Text: "hello"},
		comment.Comment{Time: 9, Text: "world"},
	)
	res, out := rg.do(http.MethodPost, "/rooms", map[string]string{"videoUrl": "https://cdn.example.com/v/clip.mp4"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "clip.mp4", out["videoId"])
	assert.NotEmpty(t, out["qrPngBase64"])
	id := out["roomId"].(string)
	assert.True(t, strings.HasSuffix(out["postUrl"].(string), "/post/"+id))

	st := rg.stats(id)
	assert.EqualValues(t, 2, st["loaded"])
	assert.Eventually(t, func() bool {
		return rg.stats(id)["scheduled"] == float64(2)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, false, st["attached"])

	for _, page := range []string{"/watch/", "/overlay/", "/post/", "/admin/"} {
		res, err := http.Get(rg.ts.URL + page + id)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode, page)
	}
}

func TestUnknownRoom(t *testing.T) {
	rg := newRig(t)
	res, _ := rg.do(http.MethodGet, "/rooms/nope/stats", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = rg.do(http.MethodPost, "/rooms/nope/comments", map[string]string{"text": "x"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, err := http.Get(rg.ts.URL + "/watch/nope")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPostCommentValidation(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("")
	path := "/rooms/" + id + "/comments"

	res, _ := rg.do(http.MethodPost, path, map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": strings.Repeat("あ", 201)})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": "ok", "handle": strings.Repeat("a", 33)})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": "What the FUCK"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, out := rg.do(http.MethodPost, path, map[string]string{"text": "<b>nice</b> scene", "handle": "alice"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "0:00", out["clock"])

	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": "again", "handle": "alice"})
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)

	rg.clk.Add(2 * time.Second)
	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": "again", "handle": "alice"})
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	assert.EqualValues(t, 2, rg.stats(id)["loaded"])
}

func TestSlowMode(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("")
	res, _ := rg.do(http.MethodPost, "/rooms/"+id+"/slowmode", map[string]int{"ms": 5000})
	require.Equal(t, http.StatusOK, res.StatusCode)

	path := "/rooms/" + id + "/comments"
	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": "one"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	rg.clk.Add(3 * time.Second)
	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": "two"})
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	rg.clk.Add(2 * time.Second)
	res, _ = rg.do(http.MethodPost, path, map[string]string{"text": "two"})
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
}

func TestImport(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("https://example.com/watch?v=abc123")
	assert.Equal(t, "abc123", rg.stats(id)["videoId"])

	res, out := rg.do(http.MethodPost, "/rooms/"+id+"/import", map[string]any{
		"comments": []string{
			"1:23 here it comes",
			"no timestamp at all",
			"[YouTubeDanmaku]\n0:42 structured one\n*This is a Youtube Danmaku",
			"1:23 here it comes",
		},
		"file": "- time: 12.7\n  text: from a file\n- time: -1\n  text: bad\n",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 3, out["added"])
	assert.EqualValues(t, 2, out["rejected"])
	assert.EqualValues(t, 3, rg.stats(id)["loaded"])

	res, _ = rg.do(http.MethodPost, "/rooms/"+id+"/import", "not an object")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCommentsPersistAcrossRooms(t *testing.T) {
	rg := newRig(t)
	first := rg.createRoom("https://example.com/watch?v=shared")
	res, _ := rg.do(http.MethodPost, "/rooms/"+first+"/import", map[string]any{
		"comments": []string{"0:05 kept"},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	second := rg.createRoom("https://example.com/watch?v=shared")
	assert.EqualValues(t, 1, rg.stats(second)["loaded"])

	other := rg.createRoom("https://example.com/watch?v=other")
	assert.EqualValues(t, 0, rg.stats(other)["loaded"])
}

func TestWatchFlow(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("https://cdn.example.com/a.mp4")
	conn := rg.dial(id)

	first := next(t, conn, func(map[string]any) bool { return true })
	assert.Equal(t, "resize", first["op"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clock", "time": 65.4, "paused": false}))
	require.Eventually(t, func() bool { return rg.stats(id)["attached"] == true }, 3*time.Second, 10*time.Millisecond)

	res, out := rg.do(http.MethodPost, "/rooms/"+id+"/comments", map[string]string{"text": "live!"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.EqualValues(t, 65, out["time"])
	assert.Equal(t, "1:05", out["clock"])
	assert.Equal(t, true, out["shown"])

	spawn := next(t, conn, op("spawn"))
	assert.Equal(t, "live!", spawn["text"])
	assert.Equal(t, "structured", spawn["origin"])
	move := next(t, conn, op("move"))
	assert.Equal(t, spawn["id"], move["id"])
	assert.Greater(t, move["to"].(float64), 640.0)

	res, out = rg.do(http.MethodPost, "/settings", map[string]string{"key": "fontSize", "value": "24"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 24, out["fontSize"])
	style := next(t, conn, op("style"))
	assert.EqualValues(t, 24, style["style"].(map[string]any)["fontSize"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "event", "name": "pause", "time": 66, "paused": true}))
	pin := next(t, conn, op("pin"))
	assert.Equal(t, spawn["id"], pin["id"])

	res, _ = rg.do(http.MethodPost, "/rooms/"+id+"/clear", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	next(t, conn, op("remove"))
	assert.EqualValues(t, 0, rg.stats(id)["live"])
}

func TestLateJoinerGetsSnapshot(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("")
	a := rg.dial(id)
	require.NoError(t, a.WriteJSON(map[string]any{"type": "resize", "w": 1280, "h": 720}))
	require.NoError(t, a.WriteJSON(map[string]any{"type": "clock", "time": 10, "paused": false}))
	require.Eventually(t, func() bool { return rg.stats(id)["attached"] == true }, 3*time.Second, 10*time.Millisecond)

	res, _ := rg.do(http.MethodPost, "/rooms/"+id+"/comments", map[string]string{"text": "before you came"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	next(t, a, op("spawn"))

	b := rg.dial(id)
	resize := next(t, b, func(map[string]any) bool { return true })
	assert.Equal(t, "resize", resize["op"])
	assert.EqualValues(t, 1280, resize["w"])
	spawn := next(t, b, op("spawn"))
	assert.Equal(t, "before you came", spawn["text"])
	next(t, b, op("move"))
}

func TestSwitchVideo(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("https://example.com/watch?v=one")
	conn := rg.dial(id)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clock", "time": 1, "paused": false}))
	require.Eventually(t, func() bool { return rg.stats(id)["attached"] == true }, 3*time.Second, 10*time.Millisecond)

	res, out := rg.do(http.MethodPost, "/rooms/"+id+"/video", map[string]string{"videoUrl": "https://example.com/watch?v=two"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "two", out["videoId"])

	next(t, conn, op("release"))
	msg := next(t, conn, func(m map[string]any) bool { return m["type"] == "video" })
	assert.Equal(t, "https://example.com/watch?v=two", msg["url"])

	st := rg.stats(id)
	assert.Equal(t, "two", st["videoId"])
	assert.Equal(t, false, st["attached"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clock", "time": 0, "paused": true}))
	assert.Eventually(t, func() bool { return rg.stats(id)["attached"] == true }, 3*time.Second, 10*time.Millisecond)

	res, _ = rg.do(http.MethodPost, "/rooms/"+id+"/video", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestEnabledToggle(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("")
	conn := rg.dial(id)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clock", "time": 1, "paused": false}))
	require.Eventually(t, func() bool { return rg.stats(id)["attached"] == true }, 3*time.Second, 10*time.Millisecond)

	res, _ := rg.do(http.MethodPost, "/rooms/"+id+"/enabled", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, rg.stats(id)["enabled"])

	res, out := rg.do(http.MethodPost, "/rooms/"+id+"/comments", map[string]string{"text": "hidden"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, false, out["shown"])
	assert.EqualValues(t, 1, rg.stats(id)["loaded"])
}

func TestSettingsEndpoints(t *testing.T) {
	rg := newRig(t)
	res, out := rg.do(http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 8, out["trackCount"])

	res, _ = rg.do(http.MethodPost, "/settings", map[string]string{"key": "bogus", "value": "1"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, out = rg.do(http.MethodPost, "/settings", map[string]string{"key": "speedScale", "value": "9"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 2, out["speedScale"])
}

func TestDeleteRoom(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("")
	res, _ := rg.do(http.MethodDelete, "/rooms/"+id, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = rg.do(http.MethodGet, "/rooms/"+id+"/stats", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = rg.do(http.MethodDelete, "/rooms/"+id, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestVideoID(t *testing.T) {
	cases := []struct {
		url, explicit, want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "", "dQw4w9WgXcQ"},
		{"https://cdn.example.com/media/ep01.mp4", "", "ep01.mp4"},
		{"https://example.com/", "", "example.com"},
		{"https://example.com/x.mp4", "custom", "custom"},
		{"", "", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, VideoID(c.url, c.explicit), c.url)
	}
}

func TestParseNGWords(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar baz"}, ParseNGWords(" Foo, ,BAR baz ,"))
	assert.Nil(t, ParseNGWords(""))
}

func TestPagesCarryOverlayScript(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("")
	for _, page := range []string{"/watch/", "/overlay/"} {
		res, err := http.Get(rg.ts.URL + page + id)
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode, page)
		assert.Contains(t, string(body), overlayScript, page)
		assert.Contains(t, string(body), overlayCSS, page)
	}
}
