package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/adapters/transport"
	"github.com/dkeye/grouptalk/internal/config"
	"github.com/dkeye/grouptalk/internal/core"
	"github.com/dkeye/grouptalk/internal/domain"
)

// Status is the read side of the server plus the admin disconnect.
type Status interface {
	Rooms() []core.RoomInfo
	RoomMembers(id domain.RoomID) (core.RoomInfo, []core.MemberDTO, bool)
	SessionCount() int
	Disconnect(sid domain.SessionID) bool
}

// Admitter accepts connections arriving over other transports.
type Admitter interface {
	AdmitFramer(ctx context.Context, f transport.Framer)
}

// RequestIDMiddleware tags every request with an X-Request-ID, keeping one
// supplied by the caller.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// SetupRouter wires the admin REST API and the WebSocket entry point.
// admit may be nil, which leaves /ws unregistered.
func SetupRouter(ctx context.Context, cfg *config.Config, instanceID string, status Status, admit Admitter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	api := r.Group("/api")

	// GET /api/health: liveness and counters
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"instance": instanceID,
			"sessions": status.SessionCount(),
			"rooms":    len(status.Rooms()),
		})
	})

	// GET /api/rooms: list rooms
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": status.Rooms()})
	})

	// GET /api/rooms/:id: room info with members
	api.GET("/rooms/:id", func(c *gin.Context) {
		info, members, ok := status.RoomMembers(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room": info, "members": members})
	})

	// DELETE /api/sessions/:sid: force a disconnect
	api.DELETE("/sessions/:sid", func(c *gin.Context) {
		sid, err := strconv.ParseInt(c.Param("sid"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		if !status.Disconnect(domain.SessionID(sid)) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		log.Info().Str("module", "adapters.http").Int64("sid", sid).Str("request_id", c.GetString("request_id")).Msg("admin disconnect")
		c.Status(http.StatusAccepted)
	})

	if admit != nil {
		r.GET("/ws", func(c *gin.Context) {
			HandleWS(ctx, c, admit)
		})
	}

	log.Info().Str("module", "adapters.http").Bool("ws", admit != nil).Msg("router setup")
	return r
}
