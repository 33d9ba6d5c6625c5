package app

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"danmakuflow/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GET /ws/{room}
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.withRoom(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("room", rm.ID).Msg("[ws] upgrade failed")
		return
	}

	client := hub.NewClient(rm.Hub, conn)
	rm.join(client)
	client.Start()
}
