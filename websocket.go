package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"gregoryjjb/blinker/blink"
)

// createWebsocketHandler streams controller events to the client as JSON
// text messages until either side goes away.
func createWebsocketHandler(controller *blink.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			// Accept has already written the response
			srvlog.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")

		// Nothing is read from clients; CloseRead handles control frames and
		// cancels ctx when the peer disconnects.
		ctx := c.CloseRead(r.Context())

		unsubscribe, events := controller.Subscribe()
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					c.Close(websocket.StatusGoingAway, "controller closed")
					return
				}

				js, err := json.Marshal(e)
				if err != nil {
					srvlog.Err(err).Msg("Failed to marshal event payload for websocket")
					continue
				}

				if err := writeTimeout(ctx, 5*time.Second, c, js); err != nil {
					srvlog.Debug().Err(err).Msg("Websocket write failed, closing")
					c.Close(websocket.StatusInternalError, "event write failed")
					return
				}
			}
		}
	}
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.Write(ctx, websocket.MessageText, msg)
}
