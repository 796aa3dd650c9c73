package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"webmap/server/internal/app"
)

func main() {
	configFile := flag.String("config", "", "optional YAML configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, app.Config{ConfigFile: *configFile, EnvFile: *envFile}); err != nil {
		log.Fatalf("%v", err)
	}
}
