package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	processqueue "github.com/GridProtectionAlliance/gsf-sub065"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/rdb"
	"github.com/GridProtectionAlliance/gsf-sub065/x/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis server address")
	redisDB := flag.Int("redis-db", 0, "Redis database number")
	port := flag.Int("port", 8080, "HTTP server port")
	refresh := flag.Int("refresh", 5, "page refresh interval in seconds")
	flag.Parse()

	client := redis.NewClient(&redis.Options{
		Addr: *redisAddr,
		DB:   *redisDB,
	})
	r := rdb.NewRDB(client)
	defer r.Close()

	if err := r.Ping(); err != nil {
		log.Fatalf("Failed to connect to Redis at %s: %v", *redisAddr, err)
	}
	log.Printf("Connected to Redis at %s", *redisAddr)

	inspector := NewInspector(r)
	handler, err := NewHandler(inspector, *refresh)
	if err != nil {
		log.Fatalf("Failed to create handler: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewSnapshotCollector(func() ([]processqueue.Statistics, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return inspector.Statistics(ctx)
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", *port)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Queue monitor starting on http://localhost%s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
