package handler

import (
	"encoding/json"
	"io"

	"github.com/johniman211/payssd-sub003/internal/pubsub"

	"github.com/gin-gonic/gin"
)

// EventsHandler streams live state-change events to dashboard listeners over
// Server-Sent Events.
type EventsHandler struct {
	broker *pubsub.Broker
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(broker *pubsub.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

// Stream handles GET /api/v1/events. The connection stays open until the
// client disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	events, cancel := h.broker.Subscribe(merchantID)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, open := <-events:
			if !open {
				return false
			}
			data, err := json.Marshal(evt)
			if err != nil {
				return true
			}
			c.SSEvent(evt.Type, string(data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
