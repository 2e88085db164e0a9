// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send control
	// messages.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types for WebSocket communication
const (
	MsgTypeJoin     = "JOIN"
	MsgTypeSnapshot = "SNAPSHOT"
	MsgTypeDeleted  = "DELETED"
	MsgTypeError    = "ERROR"
	MsgTypePing     = "PING"
	MsgTypePong     = "PONG"
)

// Message represents a WebSocket message
type Message struct {
	Type     string    `json:"type"`
	GameId   string    `json:"gameId,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan Message

	userId string
	stats  *Stats
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.stats.wsDelta(-1)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] error: %v", err)
			}
			return
		}

		req := HubRequest{Type: ReqTypeWSSend, Client: c, UserId: c.userId}
		switch msg.Type {
		case MsgTypeJoin:
			req.Type = ReqTypeWSJoin
		case MsgTypePing:
			req.Message = Message{Type: MsgTypePong}
		default:
			log.Printf("[WS] Unknown message type: %s", msg.Type)
			req.Message = Message{Type: MsgTypeError, Error: "Unknown message type"}
		}
		select {
		case c.hub.requests <- req:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON queues msg without blocking. Messages are dropped when the
// buffer is full. Only the hub goroutine calls it.
func (c *wsClient) sendJSON(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

// ServeWS upgrades the request and attaches the connection to the game's
// hub. The client receives a snapshot as soon as its access is checked.
func ServeWS(hm *HubManager, stats *Stats, w http.ResponseWriter, r *http.Request) {
	userId := getUserID(r)

	gameId := r.URL.Query().Get("gameId")
	if gameId == "" || !isValidUUID(gameId) {
		http.Error(w, "Invalid gameId", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade: %v", err)
		return
	}

	hub := hm.GetHub(gameId)
	client := &wsClient{hub: hub, conn: conn, send: make(chan Message, 256), userId: userId, stats: stats}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}
	stats.wsDelta(1)

	go client.writePump()
	go client.readPump()

	select {
	case hub.requests <- HubRequest{Type: ReqTypeWSJoin, Client: client, UserId: userId}:
	case <-hub.done:
	}
}
