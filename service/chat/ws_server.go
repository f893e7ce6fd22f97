package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"QChat/logger"
	"QChat/tools/ids"
	"QChat/tools/security"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the realtime endpoint: handshake, registry bookkeeping and the
// per-connection pumps.
type Server struct {
	reg     *Registry
	jwtOpts security.Options
}

func NewServer(reg *Registry, jwtOpts security.Options) *Server {
	return &Server{reg: reg, jwtOpts: jwtOpts}
}

// HandleWS upgrades the request and keeps the connection registered for its
// whole lifetime. The handshake carries the identity: a bearer token in the
// "token" query parameter (or Authorization header), plus an optional
// "userId" parameter that must agree with the token subject.
func (s *Server) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerFrom(c.GetHeader("Authorization"))
	}
	userID, err := security.Verify(s.jwtOpts, token)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if q := c.Query("userId"); q != "" && q != userID {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed user=%s err=%v", userID, err)
		return
	}

	conn := NewConn(ids.GenerateString(), userID, ws, 256)
	go conn.writePump()

	s.reg.Register(conn)
	logger.Infof("[ws] connected user=%s conn=%s", userID, conn.ConnID)

	// Blocks until the peer disconnects or times out.
	conn.readPump()

	s.reg.Unregister(conn)
	logger.Infof("[ws] disconnected user=%s conn=%s", userID, conn.ConnID)
}

func bearerFrom(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
