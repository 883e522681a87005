// Package adminhttp is a small gin-gonic router exposing operator
// surfaces over the protocol engines: liveness, Prometheus scraping,
// and an in-flight-state debug dump. It never touches wire envelopes
// or transports — it only reads the narrow introspection methods the
// client and server protocol instances already expose. Grounded on
// codeready-toolchain-tarsy's cmd/tarsy/main.go, which wires a gin
// router's /health endpoint straight off its own services.
package adminhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nugget/eventbridge/internal/obsmetrics"
)

// ServerEngine is the subset of server.Server the debug endpoint reads.
type ServerEngine interface {
	PendingCommandCount() int
	SubscribedStreamIDs() []string
}

// ClientEngine is the subset of client.Protocol the debug endpoint
// reads. A process running only a server (no local client demo) passes
// nil.
type ClientEngine interface {
	PendingCommandIDs() []string
	SubscribedStreamIDs() []string
}

// NewRouter builds the admin HTTP surface. gatherer is typically
// prometheus.DefaultGatherer, matching whichever registry the caller's
// obsmetrics registries were created against.
func NewRouter(srv ServerEngine, cli ClientEngine, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(obsmetrics.Handler(gatherer)))

	router.GET("/debug/pending", func(c *gin.Context) {
		body := gin.H{}
		if srv != nil {
			body["server"] = gin.H{
				"pendingCommands":   srv.PendingCommandCount(),
				"subscribedStreams": srv.SubscribedStreamIDs(),
			}
		}
		if cli != nil {
			body["client"] = gin.H{
				"pendingCommandIds": cli.PendingCommandIDs(),
				"subscribedStreams": cli.SubscribedStreamIDs(),
			}
		}
		c.JSON(http.StatusOK, body)
	})

	return router
}
