package realtime

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	writeWait  = 5 * time.Second
)

// ServeQueue - handler WebSocket untuk satu queue: client subscribe ke hub
// dan menerima semua event queue tersebut sebagai JSON.
func ServeQueue(hub *Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		queueID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "queue id tidak valid"))
			c.Close()
			return
		}

		sub := hub.Subscribe(queueID)
		defer hub.Unsubscribe(sub)

		log.Printf("[realtime] client %s subscribe queue %d", c.RemoteAddr(), queueID)

		var writeMux sync.Mutex
		done := make(chan struct{})

		c.SetReadDeadline(time.Now().Add(pongWait))
		c.SetPongHandler(func(string) error {
			c.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		// Writer: event dari hub + ping berkala lewat satu mutex tulis.
		go func() {
			ticker := time.NewTicker(pingPeriod)
			defer ticker.Stop()

			for {
				select {
				case ev, ok := <-sub.C:
					if !ok {
						return
					}
					msg, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					writeMux.Lock()
					c.SetWriteDeadline(time.Now().Add(writeWait))
					err = c.WriteMessage(websocket.TextMessage, msg)
					writeMux.Unlock()
					if err != nil {
						return
					}
				case <-ticker.C:
					writeMux.Lock()
					c.SetWriteDeadline(time.Now().Add(writeWait))
					err := c.WriteMessage(websocket.PingMessage, nil)
					writeMux.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read loop: cuma untuk pong dan deteksi close.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure,
				) {
					log.Printf("[realtime] client queue %d close tidak wajar: %v", queueID, err)
				}
				close(done)
				return
			}
		}
	}
}
