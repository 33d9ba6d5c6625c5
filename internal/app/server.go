package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/engine"
	"danmakuflow/internal/render"
	"danmakuflow/internal/settings"
	"danmakuflow/internal/store"
	"danmakuflow/internal/util"
)

// DefaultNGWords is used when no NG word list is configured.
var DefaultNGWords = []string{"死ね", "fuck", "shit"}

// ParseNGWords splits a comma-separated list, lowercasing each word.
func ParseNGWords(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type Config struct {
	NGWords  []string
	Settings *settings.Store
	// Store persists comments per video; nil keeps them in memory only.
	Store *store.Store
	// Metrics measures overlay text; nil falls back to an estimate.
	Metrics *render.Metrics
	// Seed comments are loaded into every new room.
	Seed []comment.Comment
	// AwaitTimeout bounds the wait for a watch page to report its player.
	AwaitTimeout time.Duration
	Clock        clock.Clock
}

type Server struct {
	router chi.Router
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*room
	// rate[roomID][identity] = lastPostTime
	rate map[string]map[string]time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Settings == nil {
		cfg.Settings = settings.NewStore(settings.Default())
	}
	if cfg.NGWords == nil {
		cfg.NGWords = DefaultNGWords
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = engine.DefaultAwait
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*room),
		rate:   make(map[string]map[string]time.Time),
	}
	cfg.Settings.OnChange(s.broadcastSetting)

	r := chi.NewRouter()
	r.Use(util.Logging)
	r.Get("/health", s.handleHealth)
	r.Post("/rooms", s.handleCreateRoom)
	r.Get("/ws/{room}", s.handleWS)
	r.Get("/watch/{room}", s.handleWatch)
	r.Get("/overlay/{room}", s.handleOverlay)
	r.Get("/post/{room}", s.handlePostForm)
	r.Get("/admin/{room}", s.handleAdmin)
	r.Get("/settings", s.handleGetSettings)
	r.Post("/settings", s.handleSetSetting)
	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Delete("/", s.handleDeleteRoom)
		r.Get("/stats", s.handleStats)
		r.Post("/comments", s.handlePostComment)
		r.Post("/import", s.handleImport)
		r.Delete("/comments", s.handlePurgeComments)
		r.Post("/video", s.handleVideo)
		r.Post("/clear", s.handleClear)
		r.Post("/enabled", s.handleEnabled)
		r.Post("/slowmode", s.handleSlowMode)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Close detaches every room and stops its loops.
func (s *Server) Close() {
	s.mu.Lock()
	rooms := make([]*room, 0, len(s.rooms))
	for id, rm := range s.rooms {
		rooms = append(rooms, rm)
		delete(s.rooms, id)
	}
	s.mu.Unlock()
	for _, rm := range rooms {
		rm.close()
	}
	s.cancel()
}

func (s *Server) room(r *http.Request) (*room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[chi.URLParam(r, "room")]
	return rm, ok
}

// withRoom resolves the {room} parameter or answers 404.
func (s *Server) withRoom(w http.ResponseWriter, r *http.Request) (*room, bool) {
	rm, ok := s.room(r)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
	}
	return rm, ok
}

func (s *Server) broadcastSetting(key settings.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rm := range s.rooms {
		rm.applySetting(key)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type createRoomReq struct {
	VideoURL string `json:"videoUrl"`
	VideoID  string `json:"videoId"`
}

// VideoID picks a stable key for a video: the explicit id, YouTube's v
// parameter, or the last path element of the URL.
func VideoID(rawURL, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || rawURL == "" {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if base := path.Base(u.Path); base != "/" && base != "." {
		return base
	}
	return u.Host
}

// POST /rooms -> { roomId, watchUrl, overlayUrl, postUrl, adminUrl, qrPngBase64 }
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	videoID := VideoID(req.VideoURL, req.VideoID)
	if videoID == "" {
		videoID = "default"
	}

	id := util.NewRoomID(10)
	rm, err := s.newRoom(id, videoID, strings.TrimSpace(req.VideoURL))
	if err != nil {
		log.Error().Err(err).Str("room", id).Msg("[room] create failed")
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	s.rooms[id] = rm
	s.mu.Unlock()

	base := util.BaseURL(r)
	postURL := base + "/post/" + id

	// Generate QR for post URL
	png, err := qrcode.Encode(postURL, qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "failed to generate QR", http.StatusInternalServerError)
		return
	}

	log.Info().Str("room", id).Str("video", videoID).Msg("[room] created")
	writeJSON(w, http.StatusOK, map[string]string{
		"roomId":      id,
		"videoId":     videoID,
		"watchUrl":    base + "/watch/" + id,
		"overlayUrl":  base + "/overlay/" + id,
		"postUrl":     postURL,
		"adminUrl":    base + "/admin/" + id,
		"qrPngBase64": base64.StdEncoding.EncodeToString(png),
	})
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "room")
	s.mu.Lock()
	rm, ok := s.rooms[id]
	delete(s.rooms, id)
	delete(s.rate, id)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	rm.close()
	log.Info().Str("room", id).Msg("[room] closed")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	st, ok := rm.stats()
	if !ok {
		http.Error(w, "room closed", http.StatusGone)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Settings.Snapshot())
}

type setSettingReq struct {
	Key   settings.Key `json:"key"`
	Value string       `json:"value"`
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req setSettingReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	next, err := s.cfg.Settings.Set(req.Key, req.Value)
	if errors.Is(err, settings.ErrUnknownKey) || errors.Is(err, settings.ErrInvalidValue) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("key", string(req.Key)).Msg("[settings] save failed")
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	rm.clear()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	rm.setEnabled(body.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": body.Enabled})
}

func (s *Server) handleSlowMode(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	var body struct {
		Ms int `json:"ms"`
	}
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.Ms < 0 {
		body.Ms = 0
	}
	s.mu.Lock()
	rm.SlowMode = time.Duration(body.Ms) * time.Millisecond
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "slowModeMs": body.Ms})
}

func (s *Server) handlePurgeComments(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	remaining, err := rm.purgeComments()
	if errors.Is(err, errRoomClosed) {
		http.Error(w, "room closed", http.StatusGone)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room", rm.ID).Msg("[comments] purge failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "loaded": remaining})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	var req createRoomReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	videoID := VideoID(req.VideoURL, req.VideoID)
	if videoID == "" {
		http.Error(w, "video required", http.StatusBadRequest)
		return
	}
	loaded, err := rm.switchVideo(videoID, strings.TrimSpace(req.VideoURL))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "videoId": videoID, "loaded": loaded})
}
