package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/dp-pcs/ttv-pipeline/internal/bootstrap"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	app, err := bootstrap.New(*configPath)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}

// defaultConfigPath places the config under the user's home directory.
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".ttv-pipeline", "config.yaml")
}
