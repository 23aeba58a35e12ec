package promclient

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var RecordsEmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bridge_records_emitted_total",
		Help: "records written to the price pipe, by record kind",
	},
	[]string{"kind"},
)

var FeedAnomalies = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bridge_feed_anomalies_total",
		Help: "feed messages dropped or partially applied, by reason",
	},
	[]string{"reason"},
)

var TableRows = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "bridge_table_rows",
		Help: "rows held in each mirrored table",
	},
	[]string{"table"},
)

var OrderCommands = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bridge_order_commands_total",
		Help: "inbound pipe commands, by result",
	},
	[]string{"result"},
)

var SessionLive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "bridge_feed_session_live",
		Help: "1 while the feed session is live",
	},
)

// HealthFunc reports the current session state and whether it is healthy.
type HealthFunc func() (state string, healthy bool)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(RecordsEmitted)
	reg.MustRegister(FeedAnomalies)
	reg.MustRegister(TableRows)
	reg.MustRegister(OrderCommands)
	reg.MustRegister(SessionLive)
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

func NewRouter(reg *prometheus.Registry, health HealthFunc) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		state, healthy := health()
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"state": state})
	}).Methods(http.MethodGet)
	return r
}

func NewServer(addr string, health HealthFunc) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(NewRegistry(), health),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
