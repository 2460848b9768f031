package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"evcs/internal"
	"evcs/internal/config"
	"evcs/metrics"
	"evcs/server"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to config file")
	flag.Parse()

	log.Println("using config file: " + *configPath)
	conf, err := config.GetConfig(*configPath)
	if err != nil {
		log.Println("configuration load failed", err)
		return
	}

	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		log.Printf("time zone %s: %v; using UTC", conf.TimeZone, err)
		location = time.UTC
	}

	zapLogger := internal.NewZapLogger(conf)
	logService := internal.NewLogger(zapLogger, location)
	logService.SetDebugMode(conf.IsDebug)
	defer logService.Close()

	centralSystem, err := server.NewCentralSystem(conf, logService)
	if err != nil {
		log.Println("central system initialization failed", err)
		return
	}

	metricsServer := metrics.NewServer(conf)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logService.Error("metrics server failed", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := centralSystem.Start(); err != nil {
			log.Println("central system stopped with error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err = centralSystem.Shutdown(shutdownCtx); err != nil {
		log.Println("shutdown", err)
	}
}
