package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/hrassist/internal/config"
	"github.com/kalambet/hrassist/internal/loader"
	"github.com/kalambet/hrassist/internal/orchestrator"
	"github.com/kalambet/hrassist/internal/retrieval"
	"github.com/kalambet/hrassist/internal/session"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir|file]",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest documents into the knowledge base, in-process.

With no argument the configured documents.dir is used. Re-ingesting a
document with the same name replaces its earlier chunks.

Examples:
  hrassist ingest
  hrassist ingest ./documents
  hrassist ingest ./documents/remote_work.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		target := cfg.Documents.Dir
		if len(args) == 1 {
			target = args[0]
		}
		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("reading %s: %w", target, err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		if !info.IsDir() {
			res := a.pipeline.IngestFile(ctx, target)
			if !res.OK() {
				return res.Err
			}
			printSuccess("%s: %d chunks", res.Name, res.Chunks)
			return nil
		}

		rep, err := a.ingestDir(ctx, target)
		if err != nil {
			return err
		}
		if failed := len(rep.Failures()); failed > 0 {
			printWarning("%d of %d documents failed", failed, len(rep.Results))
		} else {
			printSuccess("Ingested %d documents", rep.Succeeded())
		}
		return nil
	},
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document to a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := uploadRequest(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/ingest", req)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued %s as job %s", req["name"], result["id"])
		return nil
	},
}

// uploadRequest builds the /ingest body for a file. PDFs are base64 encoded.
func uploadRequest(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	name := filepath.Base(path)
	format, err := loader.Detect(name, data)
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"name":   name,
		"format": string(format),
	}
	if format == loader.PDF {
		req["content"] = base64.StdEncoding.EncodeToString(data)
	} else {
		req["content"] = string(data)
	}
	return req, nil
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List or remove documents on a running server",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/documents")
		if err != nil {
			return err
		}

		var docs []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			ChunkCount int    `json:"chunk_count"`
			IngestedAt string `json:"ingested_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents ingested.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  %-32s %3d chunks  %s\n", colorize(colorCyan, d.ID[:8]), d.Name, d.ChunkCount, d.IngestedAt)
		}
		return nil
	},
}

var documentsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/documents/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Removed document %s", args[0])
		return nil
	},
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsRemoveCmd)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Ask a single question. By default the assistant runs in-process;
with --remote the question goes to a running server.

Examples:
  hrassist ask "How many vacation days do I have left?"
  hrassist ask --remote --session abc "And my sick leave?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")
		remote, _ := cmd.Flags().GetBool("remote")

		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			view, sid, err := askRemote(cmd.Context(), client, sessionID, question)
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), view)
			if sessionID == "" {
				printStatus("Session", "%s", sid)
			}
			return nil
		}

		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, io.Discard)
		if err != nil {
			return err
		}
		defer a.Close()

		if sessionID == "" {
			sessionID = session.NewID()
		}
		ans, err := a.orch.Ask(cmd.Context(), sessionID, question)
		if err != nil {
			return err
		}
		printAnswer(cmd.OutOrStdout(), viewOf(ans))
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session id to continue (remote mode)")
	askCmd.Flags().Bool("remote", false, "send the question to a running server")
}

func viewOf(ans orchestrator.Answer) answerView {
	return answerView{Answer: ans.Text, Intent: string(ans.Intent), Sources: sourceNames(ans.Sources)}
}

func askRemote(ctx context.Context, client *apiClient, sessionID, question string) (answerView, string, error) {
	body := map[string]any{"question": question}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	resp, err := client.post(ctx, "/ask", body)
	if err != nil {
		return answerView{}, "", err
	}

	var result struct {
		Answer    string             `json:"answer"`
		SessionID string             `json:"session_id"`
		Intent    string             `json:"intent"`
		Sources   []retrieval.Source `json:"sources"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return answerView{}, "", err
	}
	return answerView{Answer: result.Answer, Intent: result.Intent, Sources: sourceNames(result.Sources)}, result.SessionID, nil
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the assistant",
	Long: `Interactive chat. Type /reset to start over and /quit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(cmd.OutOrStdout(), colorize(colorBold, "HR assistant. Ask about policies, vacation, sick leave or payslips."))
		return runChat(cmd.Context(), a.orch, cmd.InOrStdin(), cmd.OutOrStdout(), session.NewID())
	},
}

// chatAssistant is the part of the orchestrator the REPL needs.
type chatAssistant interface {
	Ask(ctx context.Context, sessionID, text string) (orchestrator.Answer, error)
	Reset(sessionID string)
}

// runChat reads questions line by line until EOF or /quit.
func runChat(ctx context.Context, asst chatAssistant, in io.Reader, out io.Writer, sessionID string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, colorize(colorCyan, "you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			asst.Reset(sessionID)
			fmt.Fprintln(out, colorize(colorDim, "(conversation cleared)"))
			continue
		}

		ans, err := asst.Ask(ctx, sessionID, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			printError("%v", err)
			continue
		}
		fmt.Fprint(out, colorize(colorGreen, "hr> "))
		printAnswer(out, viewOf(ans))
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("  %s\n", colorize(colorDim, "file: "+config.FilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// loadCLIConfig loads config and sets up logging for in-process commands.
// Logs go to stderr at warn unless debug was asked for.
func loadCLIConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	level := cfg.Log.Level
	if level == "info" {
		level = "warn"
	}
	setupLogging(level, os.Stderr)
	return cfg, nil
}
