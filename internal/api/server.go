package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printpoint/kiosk/internal/api/handlers"
	"github.com/printpoint/kiosk/internal/config"
)

// NewServer builds the HTTP server around the router. A server-wide write
// deadline would cut the status event stream, which stays open for the
// lifetime of the subscriber, so the stream route is served unbounded and
// every other route is wrapped in http.TimeoutHandler instead.
func NewServer(cfg *config.ServerConfig, router *gin.Engine) *http.Server {
	handler := http.Handler(router)
	if cfg.WriteTimeout > 0 {
		bounded := http.TimeoutHandler(router, cfg.WriteTimeout, `{"error":"request timed out"}`)
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == handlers.StatusStreamRoute {
				router.ServeHTTP(w, r)
				return
			}
			bounded.ServeHTTP(w, r)
		})
	}

	return &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     handler,
		ReadTimeout: cfg.ReadTimeout,
	}
}
