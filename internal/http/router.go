package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/MrFriendly-B-V/ExactAuth/internal/config"
	"github.com/MrFriendly-B-V/ExactAuth/internal/http/handler"
	httpmiddleware "github.com/MrFriendly-B-V/ExactAuth/internal/http/middleware"
	"github.com/MrFriendly-B-V/ExactAuth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/login", authHandler.BeginLogin)
		v1.GET("/logged-in", authHandler.LoggedIn)
		v1.GET("/access-token", authHandler.AccessToken)
	}

	return r
}
