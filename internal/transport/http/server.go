package http

import (
	"github.com/gin-gonic/gin"

	"hybridrag/internal/bootstrap"
	"hybridrag/internal/transport/http/handler"
	"hybridrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.Recovery(app.Logger), middleware.RequestLogger(app.Logger, app.Metrics))
	router.MaxMultipartMemory = 32 << 20

	healthHandler := handler.NewHealthHandler(app)
	authHandler := handler.NewAuthHandler(app.Auth)
	chatHandler := handler.NewChatHandler(app.Chat, app.Answers)
	documentHandler := handler.NewDocumentHandler(app.Documents, int64(app.Config.Ingest.MaxUploadMB)<<20)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	docGroup := v1.Group("/documents", requireAuth)
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.DELETE("", documentHandler.Clear)
	docGroup.POST("/process", documentHandler.Process)
	docGroup.DELETE("/:id", documentHandler.Delete)
	docGroup.GET("/:id/pages/:page", documentHandler.Page)

	v1.GET("/kg/triples", requireAuth, documentHandler.Triples)

	chatGroup := v1.Group("/chat", requireAuth)
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.GET("/history", chatHandler.GetHistory)
	chatGroup.POST("/ask", chatHandler.Ask)
	chatGroup.POST("/ask/:retry_id/retry", chatHandler.Retry)

	return router
}
