package router

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/handlers"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/services"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionName      = "admissions_session"
	loginRatePerMin  = 5
	intakeRatePerMin = 60
)

// Dependencies are the stores and services the handlers are built from.
type Dependencies struct {
	DB            *gorm.DB
	Users         *repository.UserRepository
	Attendees     *repository.AttendeeRepository
	Notifications *repository.NotificationRepository
	Settings      *repository.SettingsRepository
	Reports       *repository.ReportRepository
	Submissions   *services.SubmissionService
	Orchestrator  *services.Orchestrator
	Notifier      *services.Notifier
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.Header("Retry-After", strconv.Itoa(int(time.Until(info.ResetTime).Seconds())+1))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again later."})
}

func newLimiter(perMinute int) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: uint(perMinute),
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})
}

// publicCORS lets the test client, served from another origin, post results.
func publicCORS(origins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	return cors.New(conf)
}

// Setup builds the gin engine. The returned handler also accepts colon-style
// custom methods such as DELETE /attendees:clear.
func Setup(log *zap.Logger, conf *config.Config, deps Dependencies) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   conf.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions(sessionName, store))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	intakeHandler := handlers.NewIntakeHandler(log, deps.Submissions, deps.Notifier)
	authHandler := handlers.NewAuthHandler(log, conf.Server, deps.Users)
	attendeeHandler := handlers.NewAttendeeHandler(log, deps.Attendees)
	nurtureHandler := handlers.NewNurtureHandler(log, deps.Orchestrator)
	notificationHandler := handlers.NewNotificationHandler(log, deps.Notifications)
	settingsHandler := handlers.NewSettingsHandler(log, deps.Settings)
	reportHandler := handlers.NewReportHandler(log, deps.Reports)

	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			log.Error("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public intake from the test client.
	corsMiddleware := publicCORS(conf.Server.AllowedOrigins)
	intakeLimiter := newLimiter(intakeRatePerMin)
	public := router.Group("/")
	public.Use(corsMiddleware)
	{
		intake := func(path string, h gin.HandlerFunc) {
			public.POST(path, intakeLimiter, h)
			public.OPTIONS(path, func(c *gin.Context) { c.Status(http.StatusNoContent) })
		}
		intake("/submissions", intakeHandler.Submit)
		intake("/scholarship-submit", intakeHandler.Submit)
		intake("/leads", intakeHandler.Capture)
		intake("/leads/register", intakeHandler.Capture)
		intake("/monitoring/alert", intakeHandler.Alert)
	}

	router.Use(UserLoaderMiddleware(deps.Users, conf.Server.JWTSecret, log))
	router.POST("/auth/login", newLimiter(loginRatePerMin), authHandler.Login)

	authorized := router.Group("/")
	authorized.Use(AuthRequired(), CSRFProtection(log))
	{
		authorized.GET("/auth/me", authHandler.Me)
		authorized.POST("/auth/logout", authHandler.Logout)
		authorized.POST("/auth/change-password", authHandler.ChangePassword)

		authorized.GET("/notifications", notificationHandler.List)
		authorized.PATCH("/notifications", notificationHandler.Update)
		authorized.DELETE("/notifications", notificationHandler.Clear)

		authorized.GET("/settings", settingsHandler.Get)
		authorized.POST("/settings", RequirePermission(models.PermEditSettings, log), settingsHandler.Save)

		reports := authorized.Group("/")
		reports.Use(RequirePermission(models.PermViewReport, log))
		{
			reports.GET("/attendees", attendeeHandler.List)
			reports.GET("/reports/overview", reportHandler.Overview)
		}

		admin := authorized.Group("/")
		admin.Use(RequirePermission(models.PermManageRoles, log))
		{
			admin.DELETE("/attendees/clear", attendeeHandler.Clear)
			admin.DELETE("/clear-data", attendeeHandler.Clear)
		}

		authorized.POST("/nurture", RequirePermission(models.PermTriggerNurture, log), nurtureHandler.Handle)
	}

	return customMethods(router)
}

// customMethods rewrites "/collection:verb" to "/collection/verb" before
// routing.
func customMethods(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if i := strings.LastIndexByte(p, ':'); i > 0 && i > strings.LastIndexByte(p, '/') {
			r.URL.Path = p[:i] + "/" + p[i+1:]
			r.URL.RawPath = ""
		}
		next.ServeHTTP(w, r)
	})
}
