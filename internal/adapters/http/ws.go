package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/grouptalk/internal/adapters/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and admits the socket like a TCP connection.
// Each binary message carries one envelope.
func HandleWS(ctx context.Context, c *gin.Context, admit Admitter) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	admit.AdmitFramer(ctx, transport.NewWSFramer(ws, ws.RemoteAddr().String()))
}
