package http

import (
	"net/http"

	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	orch *orch.Orchestrator
}

type roomView struct {
	domain.RoomInfo
	Ingest any `json:"ingest,omitempty"`
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms := h.orch.Rooms.List()
	stats := h.orch.ReceiverStats()
	out := make([]roomView, 0, len(rooms))
	for _, info := range rooms {
		v := roomView{RoomInfo: info}
		if s, ok := stats[info.ID]; ok {
			v.Ingest = s
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *handlers) getRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	room, ok := h.orch.Rooms.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	v := roomView{RoomInfo: room.Info()}
	if r, ok := h.orch.Receiver(id); ok {
		v.Ingest = r.Stats()
	}
	c.JSON(http.StatusOK, v)
}

func (h *handlers) roomCapabilities(c *gin.Context) {
	room, ok := h.orch.Rooms.Get(domain.RoomID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rtpCapabilities": room.RtpCapabilities()})
}

func (h *handlers) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.orch.Registry.Snapshot()})
}

func (h *handlers) kickSession(c *gin.Context) {
	if !h.orch.Kick(core.SessionID(c.Param("id"))) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
