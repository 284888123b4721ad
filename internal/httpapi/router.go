package httpapi

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qrattend/internal/auth"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/identity"
)

// RouterOptions configures the engine around a Handler.
type RouterOptions struct {
	SigningKey  string
	Issuer      string
	CORSOrigins []string
	// TrustedProxies may set X-Forwarded-For. Empty trusts none, so the
	// network address used for binding is the peer address.
	TrustedProxies []string
	Limiter        httpmiddleware.Limiter
	Production     bool
}

// NewRouter wires every route.
func NewRouter(h *Handler, opts RouterOptions) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(RequestLogger(h.log, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	r.Use(SecurityHeaders(opts.Production))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1", auth.Bearer(opts.SigningKey, opts.Issuer))
	if opts.Limiter != nil {
		v1.Use(httpmiddleware.Middleware(opts.Limiter, h.log))
	}

	teacher := auth.RequireRole(identity.RoleTeacher)
	v1.POST("/sessions", teacher, h.CreateSession)
	v1.POST("/sessions/:id/token", teacher, h.IssueToken)
	v1.GET("/sessions/:id/qr.png", teacher, h.QRCode)
	v1.PUT("/sessions/:id/close", teacher, h.CloseSession)
	v1.GET("/sessions/:id/attendance", teacher, h.SessionAttendance)
	v1.GET("/sessions/:id/live", teacher, h.LiveCounts)

	student := auth.RequireRole(identity.RoleStudent)
	v1.POST("/attendance/verify", student, h.Verify)
	v1.GET("/attendance/history", student, h.History)
	v1.GET("/sessions/active", student, h.ActiveSessions)
	v1.POST("/me/binding/reset-request", student, h.RequestBindingReset)

	admin := v1.Group("/admin", auth.RequireRole(identity.RoleAdmin))
	admin.GET("/policy", h.GetPolicy)
	admin.PUT("/policy", h.PutPolicy)
	admin.PUT("/users/:id/reset-binding", h.ResetBinding)

	return r, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// SecurityHeaders sets the usual browser hardening headers. HSTS is only
// sent in production.
func SecurityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// RequestLogger logs one line per request with zap.
func RequestLogger(log *zap.Logger, skipPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if slices.Contains(skipPaths, path) {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if claims, ok := auth.FromContext(c); ok {
			fields = append(fields, zap.String("principal_id", claims.Subject))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
