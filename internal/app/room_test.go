package app

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/hub"
)

func (rg *rig) room(id string) *room {
	rg.t.Helper()
	rg.srv.mu.Lock()
	defer rg.srv.mu.Unlock()
	rm, ok := rg.srv.rooms[id]
	require.True(rg.t, ok, id)
	return rm
}

func TestSecondPageDoesNotDriveClock(t *testing.T) {
	rg := newRig(t)
	id := rg.createRoom("https://cdn.example.com/a.mp4")
	a := rg.dial(id)
	require.NoError(t, a.WriteJSON(map[string]any{"type": "clock", "time": 10.3, "paused": false}))
	require.Eventually(t, func() bool { return rg.stats(id)["attached"] == true }, 3*time.Second, 10*time.Millisecond)

	res, _ := rg.do(http.MethodPost, "/rooms/"+id+"/comments", map[string]string{"text": "still here"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	next(t, a, op("spawn"))

	rm := rg.room(id)
	other := &hub.Client{}
	rm.handleMessage(other, []byte(`{"type":"clock","time":40,"paused":false}`))
	rm.handleMessage(other, []byte(`{"type":"event","name":"pause","time":40,"paused":true}`))

	st := rg.stats(id)
	assert.EqualValues(t, 10.3, st["time"])
	assert.EqualValues(t, 1, st["live"])
	assert.False(t, rm.currentPlayer().IsPaused())

	rg.clk.Add(clockOwnerTimeout)
	rm.handleMessage(other, []byte(`{"type":"clock","time":40,"paused":false}`))
	assert.EqualValues(t, 40, rm.currentPlayer().CurrentTime())
}

func TestClockOwnerReleasedOnLeave(t *testing.T) {
	rg := newRig(t)
	rm := rg.room(rg.createRoom(""))
	first, second := &hub.Client{}, &hub.Client{}

	rm.handleMessage(first, []byte(`{"type":"clock","time":5}`))
	rm.handleMessage(second, []byte(`{"type":"clock","time":90}`))
	assert.EqualValues(t, 5, rm.currentPlayer().CurrentTime())

	rm.releaseClock(second)
	rm.handleMessage(second, []byte(`{"type":"clock","time":90}`))
	assert.EqualValues(t, 5, rm.currentPlayer().CurrentTime())

	rm.releaseClock(first)
	rm.handleMessage(second, []byte(`{"type":"clock","time":90}`))
	assert.EqualValues(t, 90, rm.currentPlayer().CurrentTime())
}

func TestImportRightAfterCreate(t *testing.T) {
	rg := newRig(t)
	var wg sync.WaitGroup
	codes := make(chan int, 10)
	for i := 0; i < 10; i++ {
		id := rg.createRoom("https://example.com/watch?v=busy")
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := strings.NewReader(`{"comments":["0:0` + strconv.Itoa(i) + ` hi"]}`)
			res, err := http.Post(rg.ts.URL+"/rooms/"+id+"/import", "application/json", body)
			if err != nil {
				codes <- 0
				return
			}
			res.Body.Close()
			codes <- res.StatusCode
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.EqualValues(t, 10, rg.stats(rg.createRoom("https://example.com/watch?v=busy"))["loaded"])
}

func TestPurgeComments(t *testing.T) {
	rg := newRig(t, comment.Comment{Time: 1, Text: "seeded"})
	id := rg.createRoom("https://example.com/watch?v=purge")
	res, _ := rg.do(http.MethodPost, "/rooms/"+id+"/import", map[string]any{
		"comments": []string{"0:05 gone soon", "0:07 also gone"},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 3, rg.stats(id)["loaded"])

	res, out := rg.do(http.MethodDelete, "/rooms/"+id+"/comments", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, out["loaded"])

	st := rg.stats(id)
	assert.EqualValues(t, 1, st["loaded"])
	assert.EqualValues(t, 1, st["scheduled"])
	assert.Equal(t, "purge", st["videoId"])
	assert.EqualValues(t, 1, rg.stats(rg.createRoom("https://example.com/watch?v=purge"))["loaded"])

	res, _ = rg.do(http.MethodDelete, "/rooms/nope/comments", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
