package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/pkg/logger"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	bootstrapAdmin := flag.String("bootstrap-admin", "", "create an admin with this email if missing, print a token for it and exit")
	writeConfig := flag.String("write-config", "", "write the effective configuration (file, .env and environment merged) to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			logger.Fatalf("Failed to write config: %v", err)
		}
		logger.Infof("Configuration written to %s", *writeConfig)
		return
	}

	svc := bootstrap(cfg)

	if *bootstrapAdmin != "" {
		token, err := svc.ensureAdmin(*bootstrapAdmin)
		svc.shutdown()
		if err != nil {
			logger.Fatalf("Failed to bootstrap admin: %v", err)
		}
		fmt.Println(token)
		return
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	registerRoutes(r, svc)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	svc.shutdown()
	logger.Info().Msg("Server exited")
}
