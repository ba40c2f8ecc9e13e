package main

import (
	"marketplace_wallet/internal/config"
	"marketplace_wallet/internal/db"
)

func main() {
	cfg := config.LoadConfig()
	db.Migrate(cfg.DSN())
}
