package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection in the session's room and pumps
// messages until the peer disconnects.
func ServeWs(hub *Hub, c *websocket.Conn, sessionId, userId string) {
	client := &Client{Hub: hub, Conn: c, SessionId: sessionId, UserId: userId, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
