package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/particle-detect/internal/logging"
	"github.com/ironsheep/particle-detect/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and --help
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("particle-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("particle-mcp - MCP server for elliptical particle detection")
			fmt.Println()
			fmt.Println("Usage: particle-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Printf("  %s=debug    Set the log level\n", logging.EnvLevel)
			fmt.Printf("  %s=path     Also log to a rotating file\n", logging.EnvFile)
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	_ = godotenv.Load()

	// stdout is for MCP protocol
	log, err := logging.New(logging.Options{Output: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "particle-mcp: %v\n", err)
		os.Exit(1)
	}
	log.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("particle MCP server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := server.New(log, Version).Run(ctx); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
