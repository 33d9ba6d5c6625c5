package app

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/util"
)

const (
	maxTextRunes   = 200
	maxHandleRunes = 32
	postCooldown   = 2 * time.Second
	maxImport      = 5000
)

type postCommentReq struct {
	Text   string `json:"text"`
	Handle string `json:"handle"`
}

// POST /rooms/{room}/comments -> stamps the comment with the watch page's
// current playback second, stores it and shows it right away.
func (s *Server) handlePostComment(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	var req postCommentReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	req.Handle = strings.TrimSpace(req.Handle)
	if req.Text == "" {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}
	if len([]rune(req.Text)) > maxTextRunes {
		http.Error(w, "text too long", http.StatusBadRequest)
		return
	}
	if len([]rune(req.Handle)) > maxHandleRunes {
		http.Error(w, "handle too long", http.StatusBadRequest)
		return
	}
	if s.hasNGWord(req.Text) || s.hasNGWord(req.Handle) {
		http.Error(w, "ng word detected", http.StatusForbidden)
		return
	}
	if !s.allowPost(rm, util.ClientIdentity(r, req.Handle)) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	text := util.PlainText(req.Text, maxTextRunes)
	if handle := util.PlainText(req.Handle, maxHandleRunes); handle != "" {
		text = "【" + handle + "】 " + text
	}
	at := rm.currentPlayer().CurrentTime()
	c, ok := comment.FromSeconds(at, text, comment.Structured)
	if !ok {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}
	c.ID = uuid.NewString()

	shown, err := rm.postLocal(c)
	if errors.Is(err, errRoomClosed) {
		http.Error(w, "room closed", http.StatusGone)
		return
	}
	if err != nil {
		// Kept in memory even when persisting failed.
		log.Error().Err(err).Str("room", rm.ID).Msg("[comments] persist failed")
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":    true,
		"id":    c.ID,
		"time":  c.Time,
		"clock": comment.FormatClock(float64(c.Time)),
		"shown": shown,
	})
}

func (s *Server) hasNGWord(text string) bool {
	lower := strings.ToLower(text)
	for _, ng := range s.cfg.NGWords {
		if ng == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(ng)) {
			return true
		}
	}
	return false
}

// allowPost applies the per-identity cooldown. A room in slow mode uses its
// slow-mode interval instead.
func (s *Server) allowPost(rm *room, identity string) bool {
	now := s.cfg.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	cooldown := postCooldown
	if rm.SlowMode > 0 {
		cooldown = rm.SlowMode
	}
	if s.rate[rm.ID] == nil {
		s.rate[rm.ID] = make(map[string]time.Time)
	}
	if last, ok := s.rate[rm.ID][identity]; ok && now.Sub(last) < cooldown {
		return false
	}
	s.rate[rm.ID][identity] = now
	return true
}

type importReq struct {
	// Comments are raw comment strings carrying a timestamp or a
	// [YouTubeDanmaku] block.
	Comments []string `json:"comments"`
	// File is a YAML or JSON comment list in the same format as --comments.
	File string `json:"file"`
}

// POST /rooms/{room}/import -> adds externally gathered comments to the
// room's current video.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	var req importReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Comments) > maxImport {
		http.Error(w, "too many comments", http.StatusRequestEntityTooLarge)
		return
	}

	var in []comment.Comment
	rejected := 0
	for _, raw := range req.Comments {
		c, err := comment.Extract(raw)
		if err != nil {
			rejected++
			continue
		}
		c.Text = util.PlainText(c.Text, maxTextRunes)
		in = append(in, c)
	}
	if strings.TrimSpace(req.File) != "" {
		parsed, skipped, err := comment.Parse([]byte(req.File))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rejected += skipped
		for _, c := range parsed {
			c.Text = util.PlainText(c.Text, maxTextRunes)
			in = append(in, c)
		}
	}

	added, err := rm.addComments(in)
	if errors.Is(err, errRoomClosed) {
		http.Error(w, "room closed", http.StatusGone)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room", rm.ID).Msg("[comments] persist failed")
	}
	log.Info().Str("room", rm.ID).Int("added", len(added)).Int("rejected", rejected).Msg("[comments] imported")
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"added":    len(added),
		"rejected": rejected,
	})
}
