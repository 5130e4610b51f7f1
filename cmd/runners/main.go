package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc/reflection"

	"web/supercluster/config"
	"web/supercluster/runner"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to a JSON config file")
	addr := flag.String("addr", "", "gRPC listen address (overrides config)")
	maxClusters := flag.Int("max-clusters", 0, "maximum number of clusters to keep in memory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.GRPCAddr = *addr
	}
	if *maxClusters > 0 {
		cfg.MaxClusters = *maxClusters
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fmt.Printf("Failed to listen: %v\n", err)
		os.Exit(1)
	}

	clusterRunner, err := runner.NewClusterRunner(cfg)
	if err != nil {
		fmt.Printf("Failed to create cluster runner: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	clusterRunner.StartCleanup(ctx)

	s := runner.NewGRPCServer(clusterRunner)

	// Enable reflection for debugging
	reflection.Register(s)

	// Handle shutdown gracefully
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down gRPC server...")
		s.GracefulStop()
	}()

	fmt.Printf("Starting gRPC server on %s...\n", cfg.GRPCAddr)
	if err := s.Serve(lis); err != nil {
		fmt.Printf("Failed to serve: %v\n", err)
		os.Exit(1)
	}
}
