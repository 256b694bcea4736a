package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/printpoint/kiosk/internal/notify"
)

// StatusStreamRoute is the long-lived event stream endpoint. The server
// exempts it from response write deadlines.
const StatusStreamRoute = "/events/status"

// EventHandler exposes the notification hub as a server-sent event stream.
// The stream carries transitions for all documents; filtering by document id
// is the subscriber's job. There is no history replay: clients fetch current
// status first, then subscribe.
type EventHandler struct {
	hub *notify.Hub
}

func NewEventHandler(hub *notify.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

func (h *EventHandler) StreamStatus(c *gin.Context) {
	id, events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("status", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *EventHandler) RegisterRoutes(r *gin.Engine) {
	r.GET(StatusStreamRoute, h.StreamStatus)
}
