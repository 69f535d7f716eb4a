// initdb creates the runs/fills tables the Postgres recorder writes to.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"latsim/internal/recorder"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file, using process environment")
	}

	store, err := recorder.NewRunStore(recorder.DSNFromEnv())
	if err != nil {
		logrus.WithError(err).Fatal("connect postgres")
	}
	defer store.Close()

	if err := store.EnsureSchema(rootCtx); err != nil {
		logrus.WithError(err).Fatal("create schema")
	}
	logrus.Info("recorder schema ready")
}
