package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web/supercluster/api"
	"web/supercluster/config"
	"web/supercluster/runner"
)

// HTTP front end for a remote cluster runner.
func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	runnerAddr := flag.String("runner", "", "cluster runner address (defaults to the config grpc_addr)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	target := *runnerAddr
	if target == "" {
		target = dialTarget(cfg.GRPCAddr)
	}

	client, err := runner.NewClient(target)
	if err != nil {
		log.Fatalf("Failed to connect to cluster runner: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if resp, err := client.ListClusters(listCtx, &runner.ListClustersRequest{}); err != nil {
		log.Printf("Cluster runner at %s not reachable yet: %v", target, err)
	} else {
		fmt.Printf("Cluster runner at %s holds %d clusters\n", target, len(resp.Clusters))
	}
	cancel()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(client).Router(),
	}

	go func() {
		fmt.Printf("Starting server on %s...\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	fmt.Println("\nShutting down server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// dialTarget turns a listen address into one the client can dial. A
// listen address without a host means the runner is on this machine.
func dialTarget(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
