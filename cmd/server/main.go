package main

import (
	"context"
	"log"

	server "github.com/driftletter/driftletter/internal/server"
	"github.com/driftletter/driftletter/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
