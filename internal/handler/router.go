package handler

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires every endpoint under /api.
func NewRouter(chat *ChatHandler, conversations *ConversationHandler) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/providers", chat.Providers)
		api.GET("/personas", chat.Personas)
		api.POST("/chat", chat.Chat)

		convs := api.Group("/conversations")
		{
			convs.GET("", conversations.List)
			convs.POST("", conversations.Create)
			convs.DELETE("", conversations.ClearAll)
			convs.GET("/:id/messages", conversations.Messages)
			convs.POST("/:id/messages", conversations.Turn)
			convs.GET("/:id/context", conversations.GetContext)
			convs.PUT("/:id/context", conversations.PutContext)
			convs.DELETE("/:id", conversations.Delete)
		}
	}
	return r
}
