package main

import (
	"context"
	"log"

	"github.com/placementhub/vault/internal/server"
	"github.com/placementhub/vault/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	app.Run(ctx)

}
