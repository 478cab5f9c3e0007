package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/devricklin/discord-relay/internal/conf"
	"github.com/devricklin/discord-relay/internal/infra/gemini"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: ask <message>")
		os.Exit(1)
	}

	cfg, err := conf.Load(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.GoogleAPIKey == "" {
		fmt.Println("Error: GOOGLE_API_KEY must be set")
		os.Exit(1)
	}

	prompts, err := conf.LoadPromptsConfig(cfg.PromptsPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	client := gemini.NewClient(cfg.GoogleAPIKey, cfg.Model, cfg.BaseURL, cfg.GenerateTimeout())
	input := strings.Join(os.Args[1:], " ")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GenerateTimeout())
	defer cancel()

	reply, err := client.Generate(ctx, "", prompts.Persona.SystemInstruction, input)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("[%s] %s\n", client.Model(), reply)
}
