package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/config"
	"github.com/TNEM22/synera-app-backend/internal/handlers"
	"github.com/TNEM22/synera-app-backend/internal/middleware"
	"github.com/TNEM22/synera-app-backend/internal/models"
	"github.com/TNEM22/synera-app-backend/internal/monitoring"
	"github.com/TNEM22/synera-app-backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Dependencies struct {
	Config        *config.Config
	Logger        *slog.Logger
	Users         services.UserService
	Projects      services.ProjectService
	Tasks         services.TaskService
	Authenticator *auth.Authenticator
	Revoker       *auth.Revoker
	Metrics       *monitoring.Metrics
	Health        *monitoring.HealthChecker
	Stats         map[string]monitoring.StatsFunc
	RateLimiter   *middleware.IPRateLimiter
}

// Server owns the gin engine and its routes.
type Server struct {
	engine *gin.Engine
	deps   Dependencies
}

func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}
	if deps.Health == nil {
		deps.Health = monitoring.NewHealthChecker(0)
	}

	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithLog())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(deps.Metrics.Middleware())
	router.Use(cors.New(corsConfig(deps.Config)))
	if deps.RateLimiter != nil {
		router.Use(middleware.RateLimit(deps.RateLimiter))
	}
	router.Use(middleware.ErrorHandler(deps.Logger))

	s := &Server{engine: router, deps: deps}
	s.registerRoutes()
	return s
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader}
	c.ExposeHeaders = []string{middleware.RequestIDHeader}
	c.MaxAge = 12 * time.Hour

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Credentials cannot be combined with a wildcard origin, so any
		// origin is echoed back instead.
		c.AllowOriginFunc = func(string) bool { return true }
	} else {
		c.AllowOrigins = origins
	}
	c.AllowCredentials = true
	return c
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	cfg := s.deps.Config
	authn := middleware.Authenticate(s.deps.Authenticator, cfg.Auth.CookieName)

	users := handlers.NewUserHandler(s.deps.Users, s.deps.Authenticator.Tokens(), s.deps.Revoker, handlers.CookieConfig{
		Name:   cfg.Auth.CookieName,
		MaxAge: cfg.Auth.CookieMaxAge,
		Secure: cfg.Auth.CookieSecure,
	})
	projects := handlers.NewProjectHandler(s.deps.Projects)
	tasks := handlers.NewTaskHandler(s.deps.Tasks)

	s.engine.GET("/health", monitoring.HealthHandler(s.deps.Health, s.deps.Metrics))
	s.engine.GET("/health/live", monitoring.LivenessHandler(s.deps.Metrics))
	s.engine.GET("/health/ready", monitoring.ReadinessHandler(s.deps.Health))
	s.engine.GET("/metrics", s.deps.Metrics.Handler(s.deps.Stats))

	v1 := s.engine.Group("/api/v1")
	{
		userRoutes := v1.Group("/users")
		{
			userRoutes.POST("/signup", users.Signup)
			userRoutes.POST("/login", users.Login)
			userRoutes.POST("/logout", users.Logout)

			protected := userRoutes.Group("", authn)
			protected.GET("/", middleware.RequireRole(models.RoleAdmin), users.List)
			protected.GET("/me", users.GetMe)
		}

		projectRoutes := v1.Group("/projects", authn)
		{
			projectRoutes.GET("/", projects.List)
			projectRoutes.POST("/", projects.Create)
			projectRoutes.PATCH("/", projects.Update)
			projectRoutes.DELETE("/", projects.Delete)

			projectRoutes.GET("/:id/task", tasks.ListByProject)
			projectRoutes.POST("/task", tasks.Create)
			projectRoutes.PATCH("/task", tasks.Update)
			projectRoutes.DELETE("/task", tasks.Delete)
			projectRoutes.PATCH("/task/status", tasks.ChangeStatus)
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "Can't find " + c.Request.URL.Path + " on this server!",
		})
	})
}
