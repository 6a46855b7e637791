// Package sse fans server-sent events out to connected users.
package sse

import (
	"io"
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

const clientBuffer = 16

// Event is one named server-sent event.
type Event struct {
	Name string
	Data any
}

// Client is one open event stream.
type Client struct {
	UserID string
	Events chan Event
}

type delivery struct {
	userID string
	event  Event
}

// Manager owns the set of open streams. All mutation happens on the Run goroutine.
type Manager struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan delivery
	stop       chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan delivery, 64),
		stop:       make(chan struct{}),
	}
}

func (m *Manager) Run() {
	for {
		select {
		case c := <-m.register:
			if m.clients[c.UserID] == nil {
				m.clients[c.UserID] = make(map[*Client]struct{})
			}
			m.clients[c.UserID][c] = struct{}{}
			log.Printf("[SSE] Client connected for user %s (%d open)", c.UserID, len(m.clients[c.UserID]))
		case c := <-m.unregister:
			if set, ok := m.clients[c.UserID]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.Events)
				}
				if len(set) == 0 {
					delete(m.clients, c.UserID)
				}
			}
		case d := <-m.broadcast:
			for c := range m.clients[d.userID] {
				select {
				case c.Events <- d.event:
				default:
					log.Printf("[SSE] Dropping %s event for slow client of user %s", d.event.Name, d.userID)
				}
			}
		case <-m.stop:
			for _, set := range m.clients {
				for c := range set {
					close(c.Events)
				}
			}
			m.clients = make(map[string]map[*Client]struct{})
			return
		}
	}
}

func (m *Manager) Stop() {
	close(m.stop)
}

func (m *Manager) Register(userID string) *Client {
	c := &Client{UserID: userID, Events: make(chan Event, clientBuffer)}
	select {
	case m.register <- c:
	case <-m.stop:
		close(c.Events)
	}
	return c
}

func (m *Manager) Unregister(c *Client) {
	select {
	case m.unregister <- c:
	case <-m.stop:
	}
}

// SendToUser queues an event for every stream the user has open. It never blocks
// on slow clients.
func (m *Manager) SendToUser(userID, event string, data any) {
	select {
	case m.broadcast <- delivery{userID: userID, event: Event{Name: event, Data: data}}:
	default:
		log.Printf("[SSE] Broadcast queue full, dropping %s for user %s", event, userID)
	}
}

// ServeHTTP streams events to the caller until the request is cancelled.
func (m *Manager) ServeHTTP(c *gin.Context, userID string) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	client := m.Register(userID)
	defer m.Unregister(client)

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	c.SSEvent("connected", gin.H{"user_id": userID})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-client.Events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
