package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openagora/agora/internal/adapters/stream"
	"github.com/openagora/agora/internal/app"
	"github.com/openagora/agora/internal/config"
	transport "github.com/openagora/agora/internal/transport/http"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a stable cookie token so
// join attempts can be rate limited per client.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("AgoraSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &transport.Handler{
		Orch:  orch,
		Joins: app.NewJoinRateLimiter(cfg.JoinLimit, cfg.JoinWindow),
	}
	ws := &stream.Controller{
		Orch:       orch,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	api := r.Group("/api")

	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms/code/:code", h.RoomByShortCode)

	room := api.Group("/rooms/:id")
	room.GET("/board", h.Board)
	room.POST("/join", h.JoinWaitingList)
	room.POST("/admit", h.AdmitParticipant)
	room.POST("/decline", h.DeclineParticipant)
	room.POST("/kick", h.KickVoter)
	room.POST("/questions", h.StartQuestion)
	room.GET("/questions", h.ListQuestions)
	room.GET("/questions/:qid", h.QuestionByID)
	room.POST("/questions/close", h.CloseQuestion)
	room.POST("/close", h.CloseRoom)
	room.POST("/vote", h.CastVote)

	room.GET("/stream/board", ws.Board)
	room.GET("/stream/voter", ws.Voter)
	room.GET("/stream/waiting", ws.WaitingList)
	api.GET("/participants/:id/stream/admission", ws.Admission)

	return r
}
