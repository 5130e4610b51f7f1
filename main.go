package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web/supercluster/api"
	"web/supercluster/config"
	"web/supercluster/runner"
)

// Standalone server: the runner lives in this process and the HTTP API
// calls it directly.
func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	numPoints := flag.Int("points", 0, "build a cluster of this many random points at startup")
	save := flag.Bool("save", false, "save the startup points to the save directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	if err := os.MkdirAll(cfg.SaveDir, 0755); err != nil {
		log.Printf("Failed to create save directory: %v", err)
	}

	clusterRunner, err := runner.NewClusterRunner(cfg)
	if err != nil {
		log.Fatalf("Failed to create cluster runner: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	clusterRunner.StartCleanup(ctx)

	if *numPoints > 0 {
		resp, err := clusterRunner.CreateCluster(ctx, &runner.CreateClusterRequest{NumPoints: *numPoints, Save: *save})
		if err != nil {
			log.Fatalf("Failed to build startup cluster: %v", err)
		}
		fmt.Printf("Built cluster %s with %d points in %v\n", resp.Cluster.ID, resp.Cluster.NumPoints, resp.Cluster.BuildDuration)
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(clusterRunner).Router(),
	}

	go func() {
		fmt.Printf("Starting server on %s...\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	fmt.Println("\nShutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
