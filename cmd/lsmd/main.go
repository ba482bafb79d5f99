// Command lsmd is a daemon wrapper around the db package: it loads a YAML
// config, opens the store over an in-memory driver, serves a Prometheus
// /metrics endpoint, and streams engine Stats to admin websocket clients,
// grounded on the teacher's cmd/graphdb-primary (flag/HTTP-server layout)
// and the laura-db examples' websocket change-stream handler for the
// streaming admin endpoint.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvmekv/ssdlsm/db"
	"github.com/nvmekv/ssdlsm/internal/config"
	"github.com/nvmekv/ssdlsm/internal/driver"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults built in if empty)")
	httpAddr := flag.String("http", ":8090", "Address to serve /metrics and /admin/stream on")
	flag.Parse()

	opts, err := loadOptions(*configPath)
	if err != nil {
		log.Fatalf("lsmd: config: %v", err)
	}

	drv := driver.NewMemDriver()
	store, st := db.Open(drv, opts)
	if !st.Ok() {
		log.Fatalf("lsmd: open: %v", st)
	}
	defer store.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/stream", newAdminStreamHandler(store))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		log.Printf("lsmd: serving on %s", *httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("lsmd: http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("lsmd: shutting down")
	server.Close()
}

// loadOptions loads a YAML config when path is non-empty, otherwise falls
// back to config.Default() with development-only secrets filled in (a real
// deployment must always pass -config).
func loadOptions(path string) (db.Options, error) {
	if path != "" {
		return config.LoadYAML(path)
	}
	opts := db.DefaultOptions()
	opts.MetaSealPassphrase = "lsmd-development-passphrase"
	opts.HostJWTSecret = "lsmd-development-host-jwt-secret-32b!!"
	if err := opts.Validate(); err != nil {
		return db.Options{}, err
	}
	return opts, nil
}
