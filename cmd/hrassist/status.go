package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/hrassist/internal/config"
	"github.com/kalambet/hrassist/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hrassist system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	serverUp := probe(client, serverURL+"/health")
	if serverUp {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "stopped")
	}

	eng, err := engine.Detect(engine.DetectConfig{
		Provider:      cfg.Engine.Provider,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
	})
	switch {
	case err != nil:
		printStatus("Engine", "%v", err)
	case eng.IsRunning(ctx):
		printStatus("Engine", "%s reachable", cfg.Engine.Provider)
	default:
		printStatus("Engine", "%s not reachable", cfg.Engine.Provider)
	}

	chatModel, embedModel := modelNames(cfg)
	printStatus("Chat model", "%s", chatModel)
	printStatus("Embed model", "%s", embedModel)

	if probe(client, cfg.HR.BaseURL+"/api/health") {
		printStatus("HR service", "reachable at %s", cfg.HR.BaseURL)
	} else {
		printStatus("HR service", "not reachable at %s", cfg.HR.BaseURL)
	}

	if serverUp {
		resp, err := client.Get(serverURL + "/documents")
		if err == nil {
			var docs []json.RawMessage
			if decodeJSON(resp, &docs) == nil {
				printStatus("Documents", "%d", len(docs))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func probe(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
