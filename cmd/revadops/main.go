package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	revadops "github.com/umerfarooqlaghari/RevAdOps-sub000"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "push-section":
		err = runPushSection(os.Args[2:])
	case "push-collection":
		err = runPushCollection(os.Args[2:])
	case "version":
		fmt.Printf("revadops %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("REVADOPS_CONFIG"), "path to a YAML config file")
	fs.Parse(args)

	cfg, err := revadops.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	app := revadops.New(cfg)
	defer app.Close()
	if err := app.Setup(); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- app.Serve() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	app.Logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		app.Logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	return <-errc
}

func printUsage() {
	fmt.Println(`revadops - RevAdOps site backend: article cache and content admin API

Usage:
  revadops <command> [arguments]

Commands:
  serve [-config file]                       Run the HTTP server
  push-section [-server url] <file.yaml>     Send changed fields of a section
  push-collection [-server url] <file.yaml>  Replace an ordered collection if it changed
  version                                    Print the revadops version
  help                                       Show this help message

The push commands log in with REVADOPS_ADMIN_PASSWORD.

Examples:
  revadops serve -config revadops.yaml
  revadops push-section -server https://revadops.example hero.yaml`)
}
