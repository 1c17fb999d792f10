package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formboard/api/internal/app"
	"formboard/api/internal/config"
	"formboard/api/internal/localstore"
	"formboard/api/internal/logging"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logCloser := logging.Setup(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var local localstore.Store = localstore.Unavailable{}
	profile, err := localstore.Open(ctx, cfg.ProfilePath)
	if err != nil {
		log.WithError(err).Warn("Profile store unavailable, admin features disabled")
	} else {
		defer profile.Close()
		local = profile
	}

	remote := app.ConnectRemote(ctx, cfg)
	service := app.New(ctx, cfg, local, remote)
	defer service.Close()
	if err := service.Bootstrap(ctx); err != nil {
		log.WithError(err).Warn("Admin slot watch not started")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Open event streams end when ctx is cancelled at shutdown.
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.WithFields(log.Fields{"addr": cfg.Addr, "mode": service.Mode()}).Info("Formboard API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}
