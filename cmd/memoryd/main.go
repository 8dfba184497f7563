package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mnemora/mnemora-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("startup failed: %v\n", err)
		os.Exit(1)
	}

	a.Start()
	a.Log.Info("memoryd running", "env", a.Cfg.Env)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	a.Log.Info("shutting down", "signal", sig.String())

	a.Close()
}
