package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request and runs it as a watcher of the given form.
// Access control happens before this is called; by the time the connection
// is upgraded the caller has already been authorized for the form.
func Serve(hub *Hub, formID int64, w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true, // auth runs on the session cookie, not the Origin header
	})
	if err != nil {
		hub.logger.Warn("websocket accept", "error", err)
		return
	}

	client := NewClient(hub, conn, formID)
	client.Run(r.Context())
}
