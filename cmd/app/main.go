package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"CypherFeed/internal/di"
	"CypherFeed/pkg/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config file path")
	flag.Parse()

	// .env is optional; environment wins over file values either way
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting env=%s backend=%s", cfg.Environment, cfg.Backend.Type)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Fatalf("app terminated: %v", err)
	}
}
