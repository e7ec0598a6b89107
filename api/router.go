package api

import (
	"github.com/gin-gonic/gin"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/qubird/crudo/schema"
	"github.com/qubird/crudo/storage"
)

// SetUpRouter wires the engine's REST surface. Everything mounts under
// /api behind the role resolver; write endpoints additionally require
// the admin role inside their handlers.
func SetUpRouter(log logger.LoggerI, registry *schema.Registry, strg storage.StorageI, resolve RoleResolver) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	h := NewHandler(registry, strg, log)

	group := router.Group("/api", AuthMiddleware(resolve))
	{
		group.GET("/_meta/models", h.ListModels)

		group.GET("/:table", h.List)
		group.POST("/:table", h.Create)

		// the static _action segment takes priority over :pk
		group.POST("/:table/_action/:name", h.RunAction)

		group.GET("/:table/:pk", h.Get)
		group.PUT("/:table/:pk", h.Update)
		group.DELETE("/:table/:pk", h.Delete)
	}

	return router
}
