package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pmctrace/internal/config"
)

func newServer(cfg config.ServerConfig, reg *prometheus.Registry, diagnostics func() string) *http.Server {
	r := mux.NewRouter()
	r.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc(cfg.DiagnosticsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagnostics()))
	}).Methods(http.MethodGet)
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html>
            <head><title>pmctrace</title></head>
            <body>
            <h1>pmctrace v` + version + `</h1>
            <p><a href="` + cfg.MetricsPath + `">Metrics</a></p>
            <p><a href="` + cfg.DiagnosticsPath + `">Diagnostic log</a></p>
            </body>
            </html>`))
	}).Methods(http.MethodGet)

	return &http.Server{Addr: cfg.ListenAddress, Handler: r}
}
