package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gwillem/waferbot/pkg/events"
	"github.com/gwillem/waferbot/pkg/messaging"
)

const (
	socketBuffer = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventSocket streams every bus event as a JSON envelope. A slow client
// loses events rather than stalling the bus.
func (s *Server) eventSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan events.Event, socketBuffer)
	id := s.cell.Bus().Subscribe(func(evt events.Event) {
		select {
		case ch <- evt:
		default:
		}
	})
	defer s.cell.Bus().Unsubscribe(id)

	// The reader only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case evt := <-ch:
			data, err := messaging.NewEnvelope(evt).Encode()
			if err != nil {
				s.log.Warnf("encode %s: %v", evt.Type, err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debugf("websocket closed: %v", err)
				return
			}
		}
	}
}
