package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"QChat/data/mongoutil"
	"QChat/global"
	"QChat/logger"
	"QChat/middleware"
	"QChat/module/chat/message"
	"QChat/module/chat/upload"
	userservice "QChat/module/user/service"
	"QChat/service/chat"
	"QChat/service/storage"
	"QChat/tools/ids"
	"QChat/tools/security"
)

func main() {
	global.Load()
	cfg := global.Config

	ids.SetNodeID(cfg.NodeID)
	jwtOpts := security.DefaultOptions(cfg.JwtSecretBytes())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoCli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		Username:    cfg.MongoUser,
		Password:    cfg.MongoPassword,
		MaxPoolSize: cfg.MongoPoolSize,
	})
	if err != nil {
		logger.Log.Fatal("mongo connect failed: " + err.Error())
	}
	db := mongoCli.GetDB()

	if err := storage.InitRedis(storage.Config{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	}); err != nil {
		// mirror only; the in-memory registry stays authoritative
		logger.Warnf("redis unavailable, presence mirror disabled: %v", err)
	}

	// realtime core
	registry := chat.NewRegistry()
	nodeID := fmt.Sprintf("node-%d", cfg.NodeID)
	broadcaster := chat.NewBroadcaster(registry, nodeID, cfg.PresenceTTL)
	registry.SetPresenceNotifier(broadcaster.OnPresenceChange)
	router := chat.NewRouter(registry, chat.NewFanout(cfg.FanoutWorkers, cfg.FanoutQueue))
	wsServer := chat.NewServer(registry, jwtOpts)

	// conversation surface
	svc := message.NewService(
		message.NewMongoStore(db),
		upload.NewHTTPUploader(cfg.UploadEndpoint),
		router,
		userservice.NewUsers(db),
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigin))
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	r.GET("/api/status", func(c *gin.Context) {
		c.String(http.StatusOK, "Server is Live")
	})

	msgGroup := r.Group("/api/messages", middleware.Auth(jwtOpts))
	message.NewHandler(svc).RegisterRoutes(msgGroup)

	r.GET("/ws", wsServer.HandleWS)

	logger.Infof("listening on %s", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		logger.Log.Fatal("server exited: " + err.Error())
	}
}
