package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"relay/internal/config"
	"relay/internal/metrics"
	"relay/internal/roomdir"
	"relay/internal/routers"
	"relay/internal/session"
	"relay/internal/utils"
)

var (
	listenAndServe = http.ListenAndServe
	exit           = os.Exit
	exitFunc       = defaultExit
)

func defaultExit(err error) {
	log.Println(err)
	exit(1)
}

func run() error {
	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()

	cfg := config.LoadConfig()

	dir := roomdir.NewDirectory(cfg.RedisAddr, time.Duration(cfg.RoomTTLSecs)*time.Second)
	hub := session.NewHub()

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Mount("/", routers.New(logger, hub, dir, cfg.SendQueueSize))

	addr := ":" + cfg.Port
	log.Printf("relay-svc listening on %s", addr)
	return listenAndServe(addr, r)
}

func main() {
	if err := run(); err != nil {
		exitFunc(err)
	}
}
