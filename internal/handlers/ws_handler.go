package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamboard/internal/realtime"
)

// EventsHandler upgrades to a websocket that streams every task event.
// The stream carries no authentication; clients filter what they show.
type EventsHandler struct {
	hub *realtime.Hub
}

func NewEventsHandler(hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// @Summary  Task event stream (websocket)
// @Tags     Realtime
// @Success  101
// @Router   /ws [get]
func (h *EventsHandler) Serve(c *gin.Context) {
	client, err := realtime.Upgrade(c.Writer, c.Request, h.hub)
	if err != nil {
		log.Printf("[ws][upgrade][err] remote=%s: %v", c.ClientIP(), err)
		return
	}
	client.Serve()
}

// @Summary  Health check
// @Tags     Health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /healthz [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
