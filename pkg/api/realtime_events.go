package api

import (
	"encoding/json"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/echo"
	"github.com/nsyszr/notify/pkg/api/resource"
	log "github.com/sirupsen/logrus"
)

// realtimeEventsHandler upgrades the request to a websocket and relays
// every message published on the delivery topics to the client. The
// subscription lives as long as the socket: a write failure tears both
// down.
func (h *Handler) realtimeEventsHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			log.Error("api: failed to upgrade to websocket: ", err)
			return nil
		}

		closeCh := make(chan struct{})

		sub, err := h.sub.Subscribe(subjectTopicWildcard, func(subject string, data []byte) {
			topic := strings.TrimPrefix(subject, "notify.v1.topic.")

			var payload interface{}
			if err := json.Unmarshal(data, &payload); err != nil {
				log.Warn("api: dropping malformed realtime payload: ", err)
				return
			}

			event := resource.NewRealtimeEvent(topic, payload)
			out, _ := json.Marshal(event)
			if err := wsutil.WriteServerMessage(conn, ws.OpText, out); err != nil {
				log.Error("api: failed to send realtime event: ", err)
				select {
				case <-closeCh:
				default:
					close(closeCh)
				}
			}
		})
		if err != nil {
			log.Error("api: failed to subscribe for realtime events: ", err)
			conn.Close()
			return nil
		}

		go func() {
			defer func() {
				sub.Unsubscribe()
				conn.Close()
			}()

			// Drain client frames so we notice the peer going away.
			for {
				select {
				case <-closeCh:
					return
				default:
				}
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		return nil
	}
}
