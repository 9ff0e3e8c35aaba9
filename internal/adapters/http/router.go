package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cazapp/famicall/internal/adapters/signal"
	"github.com/cazapp/famicall/internal/auth"
	"github.com/cazapp/famicall/internal/config"
	"github.com/cazapp/famicall/internal/domain"
)

// AuthMiddleware resolves the bearer token once per request and attaches the
// resulting user. WebSocket clients that cannot set headers pass the token as
// a query parameter instead.
func AuthMiddleware(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		user, err := resolver.Resolve(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, resolver auth.Resolver, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("FamicallSessions", store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")
	api.Use(AuthMiddleware(resolver))

	// Bulk presence query for a freshly loaded client.
	api.GET("/presence", func(c *gin.Context) {
		online, inCall := ctl.Presence.Snapshot()
		inCallSet := make(map[domain.Identity]bool, len(inCall))
		for _, id := range inCall {
			inCallSet[id] = true
		}
		type entry struct {
			Identity domain.Identity   `json:"identity"`
			Status   domain.CallStatus `json:"status"`
		}
		out := make([]entry, 0, len(online))
		for _, id := range online {
			status := domain.StatusOnline
			if inCallSet[id] {
				status = domain.StatusInCall
			}
			out = append(out, entry{Identity: id, Status: status})
		}
		c.JSON(http.StatusOK, gin.H{"users": out})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	return r
}
