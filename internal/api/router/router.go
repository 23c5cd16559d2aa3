package router

import (
	"net/http"

	apidomain "github.com/cuongbtq/verse-journal/internal/api/domain"
	"github.com/cuongbtq/verse-journal/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options carries what the router needs beyond handler dependencies
type Options struct {
	Tokens         TokenVerifier
	AllowedOrigins []string
	// Realtime is mounted at RealtimePath when set
	Realtime     http.Handler
	RealtimePath string
	ServiceName  string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": opts.ServiceName,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": opts.ServiceName,
		})
	})

	if opts.Realtime != nil {
		r.GET(opts.RealtimePath, gin.WrapH(opts.Realtime))
	}

	authHandler := handler.NewAuthHandler(deps)
	journalHandler := handler.NewJournalHandler(deps)
	poemHandler := handler.NewPoemHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	requireAuth := AuthMiddleware(opts.Tokens)
	can := RequirePermission

	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.GET("/me", requireAuth, authHandler.Me)
		}

		journals := v1.Group("/journals", requireAuth)
		{
			journals.POST("", can(apidomain.PermJournalCreate), journalHandler.CreateJournal)
			journals.GET("", can(apidomain.PermJournalRead), journalHandler.ListJournals)
			journals.GET("/:id", can(apidomain.PermJournalRead), journalHandler.GetJournal)
			journals.PATCH("/:id", can(apidomain.PermJournalUpdate), journalHandler.UpdateJournal)
			journals.DELETE("/:id", can(apidomain.PermJournalDelete), journalHandler.DeleteJournal)
		}

		poems := v1.Group("/poems", requireAuth)
		{
			poems.POST("", can(apidomain.PermPoemPublish), poemHandler.CreatePoem)
			poems.GET("/:id", can(apidomain.PermPoemRead), poemHandler.GetPoem)
			poems.DELETE("/:id", can(apidomain.PermPoemEdit), poemHandler.DeletePoem)
			poems.POST("/:id/audio", can(apidomain.PermPoemPublish), poemHandler.CreateAudio)
			poems.DELETE("/:id/file", can(apidomain.PermPoemEdit), poemHandler.DeleteAudio)
		}

		v1.GET("/jobs/:jobId", requireAuth, jobHandler.GetJob)
	}

	return r
}
