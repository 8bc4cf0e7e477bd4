package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"`
	AllowedMethods   []string      `yaml:"allowedMethods"`
	AllowedHeaders   []string      `yaml:"allowedHeaders"`
	ExposedHeaders   []string      `yaml:"exposedHeaders"`
	AllowCredentials bool          `yaml:"allowCredentials"`
	MaxAge           time.Duration `yaml:"maxAge"`
}

// CORSMiddleware lets the browser playground call the API from another origin.
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	if len(cfg.AllowedMethods) > 0 {
		corsCfg.AllowMethods = cfg.AllowedMethods
	}
	corsCfg.AddAllowHeaders("Authorization", UserIDHeader, UserRoleHeader)
	if len(cfg.AllowedHeaders) > 0 {
		corsCfg.AddAllowHeaders(cfg.AllowedHeaders...)
	}
	corsCfg.ExposeHeaders = cfg.ExposedHeaders
	corsCfg.AllowCredentials = cfg.AllowCredentials && !corsCfg.AllowAllOrigins
	if cfg.MaxAge > 0 {
		corsCfg.MaxAge = cfg.MaxAge
	}
	return cors.New(corsCfg)
}
