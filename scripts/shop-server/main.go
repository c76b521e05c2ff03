// Shop-server is a small catalogue API for trying load runs locally.
//
//	go run ./scripts/shop-server -addr :8080
//	stampede run -c testdata/shop.yaml
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/logging"
)

type item struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

var catalogue = []item{
	{ID: "a1", Name: "anvil", Price: 49.5},
	{ID: "b2", Name: "bucket", Price: 4},
	{ID: "c3", Name: "crowbar", Price: 12.25},
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	latency := flag.Duration("latency", 0, "artificial delay added to every response")
	flag.Parse()

	logger, err := logging.New(logging.Options{})
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("username") == "" {
			http.Error(w, "username required", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"token": uuid.NewString()})
	})
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		ids := make([]string, len(catalogue))
		for i, it := range catalogue {
			ids[i] = it.ID
		}
		writeJSON(w, map[string]any{"items": ids, "total": len(ids)})
	})
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		for _, it := range catalogue {
			if it.ID == r.PathValue("id") {
				writeJSON(w, it)
				return
			}
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var handler http.Handler = mux
	if *latency > 0 {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(*latency)
			mux.ServeHTTP(w, r)
		})
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("starting shop server", zap.String("addr", *addr), zap.Duration("latency", *latency))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
