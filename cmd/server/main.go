package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dinepoint/dinepoint/internal/app"
	"github.com/dinepoint/dinepoint/internal/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath string
		envFile    string
		migrate    bool
	)
	flag.StringVar(&configPath, "config", "", "path to the YAML config file (default $DINEPOINT_CONFIG or config.yaml)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before environment overrides")
	flag.BoolVar(&migrate, "migrate", false, "run database migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := config.AppConfig{ConfigPath: configPath, EnvFile: envFile}
	if migrate {
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			log.WithError(errMigrate).Fatal("migrate failed")
		}
		return
	}
	if errRun := app.RunServer(ctx, appCfg); errRun != nil {
		log.WithError(errRun).Fatal("server stopped")
	}
}
