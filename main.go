package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"messaging-service/internal/db"
	"messaging-service/internal/delivery"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/push"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/responder"
	"messaging-service/internal/session"
	"messaging-service/internal/signaling"
	"messaging-service/internal/store"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	callRepo := repositories.NewCallRepo(database)
	storyRepo := repositories.NewStoryRepo(database)

	chatStore := store.New(userRepo, chatRepo, messageRepo)

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "messaging.events"))
	defer publisher.Close()
	log.Printf("amqp publisher mode: %s", rabbitmq.PublisherMode(publisher))

	emitter := telemetry.NewAuditEmitter(publisher, "audit.messaging", "messaging-service", getEnv("ENVIRONMENT", "dev"))

	lastSeen := presence.NewLastSeenStore(getEnv("REDIS_ADDR", "localhost:6379"))

	registry := session.NewRegistry(userRepo)
	pusher := push.NewPusher(registry)

	engine := delivery.NewEngine(chatStore, pusher, registry, publisher)
	broadcaster := presence.NewBroadcaster(userRepo, chatRepo, pusher, lastSeen, 0, 0)
	relay := signaling.NewRelay(pusher, callRepo, 0)

	registry.OnTransition(func(userID int, online bool) {
		broadcaster.SetOnline(userID, online)
		if online {
			go engine.FlushOnConnect(userID)
		}
	})

	var backend responder.Responder
	if url := getEnv("RESPONDER_URL", ""); url != "" {
		backend = responder.NewHTTPResponder(url, &http.Client{Timeout: 30 * time.Second})
	} else {
		backend = responder.StaticResponder{Err: responder.ErrNoBackend}
	}
	gateway := responder.NewGateway(backend, chatStore, engine, broadcaster, 0)

	verifier := middleware.NewTokenVerifier([]byte(getEnv("JWT_SECRET", "dev-secret")))
	authMiddleware := middleware.AuthMiddleware(verifier)

	chatHandler := handlers.NewChatHandler(chatStore, engine, broadcaster, gateway, emitter)
	userHandler := handlers.NewUserHandler(userRepo, registry, broadcaster, lastSeen, emitter)
	storyHandler := handlers.NewStoryHandler(storyRepo)
	callHandler := handlers.NewCallHandler(callRepo)
	wsHandler := ws.NewHandler(registry, engine, broadcaster, relay, verifier)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())

	router.POST("/users", userHandler.Register)
	router.GET("/users/:user_id", authMiddleware, userHandler.GetUser)
	router.PUT("/users/me/privacy", authMiddleware, userHandler.UpdatePrivacy)
	router.POST("/users/:user_id/block", authMiddleware, userHandler.Block)
	router.DELETE("/users/:user_id/block", authMiddleware, userHandler.Unblock)

	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostMessage)
	router.POST("/chats/:chat_id/read", authMiddleware, chatHandler.MarkRead)

	router.POST("/stories", authMiddleware, storyHandler.PostStory)
	router.GET("/stories/feed", authMiddleware, storyHandler.GetFeed)

	router.GET("/calls", authMiddleware, callHandler.ListCalls)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, emitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
