package middleware

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines which browser origins may read the status endpoint.
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin to read status. The endpoint is
// read-only and carries no credentials.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		MaxAge:       12 * time.Hour,
	}
}

// CORS creates a CORS middleware for GET-only routes. Origins with a scheme
// outside http, https and the browser extension schemes (obsstudio://dock)
// are allowed by registering that scheme.
func CORS(cfg CORSConfig) (gin.HandlerFunc, error) {
	c := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Origin", "Cache-Control"},
		AllowCredentials: false,
		MaxAge:           cfg.MaxAge,
	}
	if len(cfg.AllowOrigins) == 0 || (len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
		c.AllowWildcard = true
		c.AllowBrowserExtensions = true
		c.CustomSchemas = customSchemas(cfg.AllowOrigins)
	}

	for _, origin := range c.AllowOrigins {
		if strings.Count(origin, "*") > 1 {
			return nil, fmt.Errorf("bad origin %q: only one * is allowed", origin)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return cors.New(c), nil
}

// customSchemas returns the "scheme://" prefixes of origins not already
// known to the cors package.
func customSchemas(origins []string) []string {
	known := append(slices.Clone(cors.DefaultSchemas), cors.ExtensionSchemas...)

	var schemas []string
	for _, origin := range origins {
		i := strings.Index(origin, "://")
		if i <= 0 || strings.Contains(origin[:i], "*") {
			continue
		}
		schema := origin[:i+3]
		if slices.Contains(known, schema) || slices.Contains(schemas, schema) {
			continue
		}
		schemas = append(schemas, schema)
	}
	return schemas
}
