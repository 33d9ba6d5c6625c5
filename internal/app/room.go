package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/engine"
	"danmakuflow/internal/hub"
	"danmakuflow/internal/player"
	"danmakuflow/internal/render"
	"danmakuflow/internal/settings"
)

var errRoomClosed = errors.New("room closed")

// fallbackSize is assumed until the watch page reports its viewport.
var fallbackSize = engine.Size{W: 640, H: 360}

// clockOwnerTimeout is how long a silent clock owner keeps the room's clock
// before another page may take it over. Watch pages report every 250ms.
const clockOwnerTimeout = 2 * time.Second

// room is one shared viewing session: a video, the comments collected for it,
// and an engine rendering them for every connected page. The engine, the
// stage and the collection's schedule live on the room's loop goroutine.
type room struct {
	ID       string
	Hub      *hub.Hub
	SlowMode time.Duration // guarded by Server.mu

	srv    *Server
	log    zerolog.Logger
	loop   *engine.Loop
	engine *engine.Engine
	stage  *render.Stage
	cancel context.CancelFunc

	mu       sync.Mutex
	videoID  string
	videoURL string
	player   *player.Remote
	coll     *comment.Collection
	// awaiting is the player an attach is waiting on.
	awaiting *player.Remote
	// owner is the page whose clock drives the player; ownerSeen is its last
	// report.
	owner     *hub.Client
	ownerSeen time.Time
}

func (s *Server) newRoom(id, videoID, videoURL string) (*room, error) {
	rm := &room{
		ID:       id,
		srv:      s,
		log:      log.With().Str("room", id).Logger(),
		videoID:  videoID,
		videoURL: videoURL,
		player:   player.NewRemote(),
	}
	rm.Hub = hub.NewHub(rm.handleMessage)
	rm.Hub.OnLeave(rm.releaseClock)
	rm.loop = engine.NewLoop(s.cfg.Clock, rm.log)
	rm.stage = render.NewStage(s.cfg.Clock, s.cfg.Metrics, render.SinkFunc(rm.send), fallbackSize)
	rm.engine = engine.New(rm.loop, s.cfg.Settings, engine.Options{Logger: &rm.log})

	coll, err := s.loadCollection(videoID)
	if err != nil {
		return nil, err
	}
	rm.coll = coll
	items := coll.Items()

	ctx, cancel := context.WithCancel(s.ctx)
	rm.cancel = cancel
	go rm.Hub.Run()
	go rm.loop.Run(ctx)
	rm.loop.Post(func() { rm.engine.UpdateSchedule(items) })
	return rm, nil
}

// loadCollection builds a video's collection from the seed comments and the
// persisted ones.
func (s *Server) loadCollection(videoID string) (*comment.Collection, error) {
	coll := comment.NewCollection(videoID)
	coll.Add(s.cfg.Seed...)
	if s.cfg.Store != nil {
		stored, err := s.cfg.Store.Load(videoID)
		if err != nil {
			return nil, fmt.Errorf("load comments for %s: %w", videoID, err)
		}
		coll.Add(stored...)
	}
	return coll, nil
}

// send forwards a render command to every page in the room.
func (rm *room) send(cmd render.Command) {
	b, err := json.Marshal(cmd)
	if err != nil {
		rm.log.Error().Err(err).Msg("[room] encode command")
		return
	}
	rm.Hub.Broadcast(b)
}

// clientMsg is what watch pages send: clock reports, player events and
// viewport sizes.
type clientMsg struct {
	Type   string  `json:"type"`
	Time   float64 `json:"time"`
	Paused bool    `json:"paused"`
	Name   string  `json:"name"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
}

func (rm *room) handleMessage(c *hub.Client, raw []byte) {
	var m clientMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		rm.log.Debug().Err(err).Msg("[room] bad client message")
		return
	}
	switch m.Type {
	case "clock":
		p, ok := rm.clockFrom(c)
		if !ok {
			return
		}
		p.Report(m.Time, m.Paused)
	case "event":
		sig, ok := player.ParseSignal(m.Name)
		if !ok {
			return
		}
		p, ok := rm.clockFrom(c)
		if !ok {
			return
		}
		p.Report(m.Time, m.Paused)
		p.Emit(sig)
	case "resize":
		if m.W <= 0 || m.H <= 0 {
			return
		}
		size := engine.Size{W: m.W, H: m.H}
		rm.loop.Post(func() {
			rm.stage.Resize(size)
			rm.engine.Resize()
		})
	}
}

// clockFrom returns the player when c owns the room's clock. The first page
// to report claims it; another page takes over once the owner has been silent
// for clockOwnerTimeout.
func (rm *room) clockFrom(c *hub.Client) (*player.Remote, bool) {
	now := rm.srv.cfg.Clock.Now()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.owner != nil && rm.owner != c && now.Sub(rm.ownerSeen) < clockOwnerTimeout {
		return nil, false
	}
	if rm.owner != c {
		rm.log.Debug().Msg("[room] clock owner changed")
	}
	rm.owner, rm.ownerSeen = c, now
	return rm.player, true
}

// releaseClock gives up c's claim on the clock when it disconnects.
func (rm *room) releaseClock(c *hub.Client) {
	rm.mu.Lock()
	if rm.owner == c {
		rm.owner = nil
	}
	rm.mu.Unlock()
}

func (rm *room) currentPlayer() *player.Remote {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.player
}

func (rm *room) video() (id, url string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.videoID, rm.videoURL
}

// attach waits for the current player to report, then binds the engine to
// it. A failed wait is logged and left for the next page to retry.
func (rm *room) attach() {
	rm.mu.Lock()
	p := rm.player
	if rm.awaiting == p {
		rm.mu.Unlock()
		return
	}
	rm.awaiting = p
	rm.mu.Unlock()

	go func() {
		defer func() {
			rm.mu.Lock()
			if rm.awaiting == p {
				rm.awaiting = nil
			}
			rm.mu.Unlock()
		}()
		ctx, cancel := context.WithCancel(rm.srv.ctx)
		defer cancel()
		go func() {
			select {
			case <-rm.loop.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		if err := engine.AwaitPlayer(ctx, p, rm.srv.cfg.AwaitTimeout); err != nil {
			rm.log.Warn().Err(err).Msg("[room] attach abandoned")
			return
		}
		rm.loop.Do(func() {
			if rm.currentPlayer() != p || rm.engine.Attached() {
				return
			}
			if err := rm.engine.Attach(engine.Target{Surface: rm.stage, Player: p}); err != nil {
				rm.log.Error().Err(err).Msg("[room] attach failed")
			}
		})
	}()
}

// join registers a page with the hub, replaying the overlay layer so it
// starts in sync, and makes sure the engine is attached.
func (rm *room) join(c *hub.Client) {
	ok := rm.loop.Do(func() {
		snap := rm.stage.Snapshot()
		msgs := make([][]byte, 0, len(snap))
		for _, cmd := range snap {
			b, err := json.Marshal(cmd)
			if err == nil {
				msgs = append(msgs, b)
			}
		}
		rm.Hub.RegisterClient(c, msgs...)
	})
	if !ok {
		rm.Hub.RegisterClient(c)
		return
	}
	rm.attach()
}

// addComments collects new comments, persists them and reschedules. It
// returns the comments that were new.
func (rm *room) addComments(in []comment.Comment) ([]comment.Comment, error) {
	rm.mu.Lock()
	added := rm.coll.Add(in...)
	items := rm.coll.Items()
	videoID := rm.coll.Video()
	rm.mu.Unlock()
	if len(added) == 0 {
		return nil, nil
	}

	var err error
	if st := rm.srv.cfg.Store; st != nil {
		for _, c := range added {
			if e := st.Append(videoID, c); e != nil && err == nil {
				err = e
			}
		}
	}
	if !rm.loop.Do(func() { rm.engine.UpdateSchedule(items) }) {
		return added, errRoomClosed
	}
	return added, err
}

// postLocal adds a comment authored in this room and shows it immediately.
func (rm *room) postLocal(c comment.Comment) (shown bool, err error) {
	if _, err := rm.addComments([]comment.Comment{c}); err != nil {
		return false, err
	}
	if !rm.loop.Do(func() { shown = rm.engine.Instant(c) }) {
		return false, errRoomClosed
	}
	return shown, nil
}

// switchVideo points the room at another video: the old engine attachment is
// torn down, the collection is rebuilt and the pages are told to load the new
// source. The engine attaches again once the new player reports.
func (rm *room) switchVideo(videoID, videoURL string) (int, error) {
	coll, err := rm.srv.loadCollection(videoID)
	if err != nil {
		return 0, err
	}
	rm.mu.Lock()
	rm.videoID, rm.videoURL = videoID, videoURL
	rm.coll = coll
	rm.player = player.NewRemote()
	rm.owner = nil
	items := coll.Items()
	rm.mu.Unlock()

	if !rm.loop.Do(func() {
		rm.engine.Detach()
		rm.engine.UpdateSchedule(items)
	}) {
		return 0, errRoomClosed
	}
	b, _ := json.Marshal(map[string]string{"type": "video", "videoId": videoID, "url": videoURL})
	rm.Hub.Broadcast(b)
	rm.log.Info().Str("video", videoID).Int("loaded", len(items)).Msg("[room] video changed")
	rm.attach()
	return len(items), nil
}

// purgeComments deletes every stored comment for the current video and
// reschedules from the seed alone. It returns how many comments remain.
func (rm *room) purgeComments() (int, error) {
	videoID, _ := rm.video()
	if st := rm.srv.cfg.Store; st != nil {
		if err := st.Delete(videoID); err != nil {
			return 0, fmt.Errorf("delete comments for %s: %w", videoID, err)
		}
	}
	coll, err := rm.srv.loadCollection(videoID)
	if err != nil {
		return 0, err
	}
	rm.mu.Lock()
	if rm.coll.Video() != videoID {
		rm.mu.Unlock()
		return 0, errors.New("video changed during purge")
	}
	rm.coll = coll
	items := coll.Items()
	rm.mu.Unlock()

	if !rm.loop.Do(func() {
		rm.engine.Clear()
		rm.engine.UpdateSchedule(items)
	}) {
		return 0, errRoomClosed
	}
	rm.log.Info().Str("video", videoID).Int("remaining", len(items)).Msg("[room] comments purged")
	return len(items), nil
}

type roomStats struct {
	VideoID   string  `json:"videoId"`
	Loaded    int     `json:"loaded"`
	Scheduled int     `json:"scheduled"`
	Live      int     `json:"live"`
	Attached  bool    `json:"attached"`
	Enabled   bool    `json:"enabled"`
	Clients   int     `json:"clients"`
	Time      float64 `json:"time"`
	Clock     string  `json:"clock"`
}

func (rm *room) stats() (roomStats, bool) {
	rm.mu.Lock()
	st := roomStats{VideoID: rm.coll.Video(), Loaded: rm.coll.Len()}
	p := rm.player
	rm.mu.Unlock()
	st.Clients = rm.Hub.Len()
	st.Time = p.CurrentTime()
	st.Clock = comment.FormatClock(st.Time)
	ok := rm.loop.Do(func() {
		st.Scheduled = rm.engine.Scheduled()
		st.Live = rm.engine.Count()
		st.Attached = rm.engine.Attached()
		st.Enabled = rm.engine.Enabled()
	})
	return st, ok
}

func (rm *room) clear() {
	rm.loop.Do(rm.engine.Clear)
}

func (rm *room) setEnabled(on bool) {
	rm.loop.Do(func() {
		rm.engine.SetEnabled(on)
		if !on {
			rm.engine.Clear()
		}
	})
}

func (rm *room) applySetting(key settings.Key) {
	rm.loop.Post(func() { rm.engine.ApplyStyleChange(key) })
}

// close detaches the engine and stops the room's goroutines.
func (rm *room) close() {
	rm.loop.Do(rm.engine.Detach)
	rm.cancel()
	rm.Hub.Close()
}
