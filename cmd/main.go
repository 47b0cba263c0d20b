package main

import (
	"log"
	"os"

	"quiz-game-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("quiz-game-service: %v", err)
		os.Exit(1)
	}
}
