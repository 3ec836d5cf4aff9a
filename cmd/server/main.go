package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vanillasomethin/sitecms/internal/config"
	"vanillasomethin/sitecms/internal/publish"
	"vanillasomethin/sitecms/internal/server"
	"vanillasomethin/sitecms/internal/store"
	"vanillasomethin/sitecms/internal/tls"

	"github.com/golang/glog"
)

func main() {
	defer glog.Flush()

	// Parse command line flags and get configuration
	cfg, err := config.ParseFlags()
	if err != nil {
		glog.Fatalf("Error parsing configuration: %v", err)
	}

	// Set up the TLS certificate if needed
	if cfg.TLS.Enabled && cfg.TLS.GenerateCert {
		if err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			glog.Fatalf("Failed to set up TLS certificate: %v", err)
		}
	}

	publisherConfig := publish.Config{
		Path:           cfg.Store.Path,
		Branch:         cfg.Store.Branch,
		DefaultMessage: cfg.Publish.DefaultMessage,
	}

	// A store that cannot be configured keeps the site up; publishing reports the cause
	var publisher *publish.Publisher
	contentStore, err := store.New(cfg.Store)
	var configErr *store.ConfigError
	switch {
	case err == nil:
		publisher = publish.New(contentStore, publisherConfig)
	case errors.As(err, &configErr):
		glog.Warningf("Content store unavailable: %v", err)
		publisher = publish.NewMisconfigured(err, publisherConfig)
	default:
		glog.Fatalf("Failed to create content store: %v", err)
	}

	// Create server
	siteServer, err := server.NewSiteServer(cfg, publisher)
	if err != nil {
		glog.Fatalf("Failed to create server: %v", err)
	}
	defer siteServer.Close()

	// Set up watchers for the site directory
	if err := siteServer.SetupWatchers(); err != nil {
		glog.Fatalf("Failed to set up file watchers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           siteServer.SetupRoutes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		// subscription streams end with the process
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		glog.Infof("Serving site directory: %s", cfg.SiteDir)
		glog.Infof("Publishing %s@%s via %s store", cfg.Store.Path, cfg.Store.Branch, cfg.Store.Backend)
		if cfg.TLS.Enabled {
			glog.Infof("Site server running at https://localhost%s", httpServer.Addr)
			glog.Infof("Using TLS certificate: %s", cfg.TLS.CertFile)
			glog.Infof("Using TLS key: %s", cfg.TLS.KeyFile)
			errc <- httpServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			glog.Infof("Site server running at http://localhost%s", httpServer.Addr)
			errc <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		glog.Infof("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			glog.Errorf("Shutdown: %v", err)
		}
	}
}
