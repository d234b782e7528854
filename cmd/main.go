package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/pawsense/pawsense-backend/internal/app"
)

func main() {
	// .env is optional; deployments set real environment variables.
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	a.Log.Info("Server listening", "port", a.Cfg.Port)
	if err := a.Run(":" + a.Cfg.Port); err != nil {
		a.Log.Error("Server exited", "error", err)
	}
}
