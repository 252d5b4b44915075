// Command server exports an ext4 block device or image file over NFSv3.
//
// Usage:
//
//	server [flags] /dev/sdb1
//
// The device is opened read-only and never written. A shared advisory
// lock guards against another process truncating or rewriting the image
// while it is exported.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/example/ext4nfs/pkg/fs/ext4"
	"github.com/example/ext4nfs/pkg/server"
)

func main() {
	listenAddr := flag.String("listen", "", "Network address to listen on (overrides config file)")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	shutdownWait := flag.Duration("shutdown-timeout", 10*time.Second, "How long to drain in-flight requests on shutdown")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <device-or-image>\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	devicePath := flag.Arg(0)

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *listenAddr != "" {
		config.ListenAddress = *listenAddr
	}

	// A shared lock: concurrent readers are fine, writers are not
	lock := flock.New(devicePath)
	locked, err := lock.TryRLock()
	if err != nil {
		log.Fatalf("Failed to lock %s: %v", devicePath, err)
	}
	if !locked {
		log.Fatalf("%s is locked for writing by another process", devicePath)
	}
	defer lock.Unlock()

	device, err := os.Open(devicePath)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer device.Close()

	fileSystem, err := ext4.NewFileSystem(device)
	if err != nil {
		log.Fatalf("Failed to read filesystem on %s: %v", devicePath, err)
	}

	nfsServer, err := server.New(config, fileSystem)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- nfsServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != server.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), *shutdownWait)
		defer cancel()
		if err := nfsServer.Shutdown(ctx); err != nil {
			log.Warnf("Shutdown did not drain cleanly: %v", err)
		}
	}

	log.Info("Server stopped")
}

// loadConfig reads a YAML configuration file over the defaults. An empty
// path keeps the defaults.
func loadConfig(path string) (*server.Config, error) {
	config := server.DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return config, nil
}
