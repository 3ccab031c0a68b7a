package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/crosstate/internal/config"
	"github.com/victornm/crosstate/internal/server"
)

func main() {
	c := loadConfig()

	slog.Info("starting node",
		"context", c.Context.Self,
		"authority", c.Context.Authority,
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() server.Config {
	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		log.Fatal("CONFIG_PATH not set")
	}

	var c server.Config
	config.MustLoad(p, &c)

	return c
}
