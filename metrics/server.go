package metrics

import (
	"log"
	"net/http"

	"evcs/internal/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns the metrics http server, nil when metrics are disabled
func NewServer(conf *config.Config) *http.Server {
	if !conf.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	address := conf.Metrics.BindIP + ":" + conf.Metrics.Port
	log.Println("starting metrics server on " + address)
	return &http.Server{Addr: address, Handler: mux}
}
