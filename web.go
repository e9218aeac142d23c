package compositor

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/framepace/compositor/internal/scheduler"
)

type rpcRequest struct {
	ID     int64                  `json:"id"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64       `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func setupRouter(modulator *scheduler.VsyncModulator, loop *DisplayLoop, registry *scheduler.LocalLivenessRegistry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/status", func(c *gin.Context) {
		status := gin.H{
			"modulator":    modulator.Snapshot(),
			"refresh_rate": loop.CurrentRefreshRate(),
			"frame_count":  loop.FrameCount(),
		}
		if b := GetPacingEventBroadcaster(); b != nil {
			status["subscribers"] = b.SubscriberCount()
		}
		c.JSON(http.StatusOK, status)
	})

	r.GET("/ws", func(c *gin.Context) {
		handleScheduleWebsocket(c, modulator, loop, registry)
	})

	return r
}

// handleScheduleWebsocket runs one client connection: schedule RPC requests
// in, pacing events out. The connection going away, for any reason, is the
// death notification for the session's client handle.
func handleScheduleWebsocket(c *gin.Context, modulator *scheduler.VsyncModulator, loop *DisplayLoop, registry *scheduler.LocalLivenessRegistry) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to accept websocket connection")
		return
	}
	defer conn.CloseNow()

	ctx := c.Request.Context()
	session := NewClientSession(modulator, loop)
	connectionID := uuid.NewString()
	wsLogger := logger.With().Str("connectionID", connectionID).Logger()

	if b := GetPacingEventBroadcaster(); b != nil {
		b.Subscribe(connectionID, conn, ctx, &wsLogger)
		defer b.Unsubscribe(connectionID)
	}
	defer registry.NotifyDeath(session.Handle())

	wsLogger.Info().Str("handle", string(session.Handle())).Msg("schedule client connected")

	for {
		var req rpcRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			wsLogger.Debug().Err(err).Msg("schedule client disconnected")
			return
		}

		resp := rpcResponse{ID: req.ID}
		if !isScheduleMethod(req.Method) {
			resp.Error = "unknown method: " + req.Method
		} else if result, err := session.HandleScheduleRPCDirect(req.Method, req.Params); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}

		if err := wsjson.Write(ctx, conn, resp); err != nil {
			wsLogger.Warn().Err(err).Msg("failed to write rpc response")
			return
		}
	}
}

// RunWebServer serves the metrics, status and schedule endpoints until the
// listener fails.
func RunWebServer(modulator *scheduler.VsyncModulator, loop *DisplayLoop, registry *scheduler.LocalLivenessRegistry) {
	r := setupRouter(modulator, loop, registry)
	logger.Info().Str("addr", config.ListenAddr).Msg("starting web server")
	if err := r.Run(config.ListenAddr); err != nil {
		logger.Error().Err(err).Msg("web server exited")
	}
}
