package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv unsets every HRASSIST_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{}`)

	cfg, err := loadWith(newFileBackend(path), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Engine.Provider != "ollama" {
		t.Errorf("Engine.Provider = %q, want ollama", cfg.Engine.Provider)
	}
	if cfg.Ollama.ChatModel != "llama3.2" {
		t.Errorf("Ollama.ChatModel = %q, want llama3.2", cfg.Ollama.ChatModel)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama.EmbedModel = %q, want nomic-embed-text", cfg.Ollama.EmbedModel)
	}
	if cfg.HR.BaseURL != "http://localhost:8001" || cfg.HR.DefaultEmployee != "EMP001" {
		t.Errorf("HR = %+v", cfg.HR)
	}
	if cfg.Chunk.Size != 500 || cfg.Chunk.Overlap != 50 {
		t.Errorf("Chunk = %+v, want 500/50", cfg.Chunk)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.MaxContextChars != 4000 {
		t.Errorf("Retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Agent.MaxToolIterations != 3 || cfg.Agent.HistoryTurns != 10 {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Timeouts.Model != 120*time.Second || cfg.Timeouts.Tool != 5*time.Second {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestFileParsing verifies that fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
  "server.port": 9000,
  "server.mcp": "true",
  "ollama.chat_model": "qwen2.5",
  "storage.data_dir": "/tmp/hrassist-test",
  "chunk.size": 800,
  "chunk.overlap": 100,
  "retrieval.min_score": "0.45",
  "timeouts.tool": "2s",
  "documents.watch": true
}`)

	cfg, err := loadWith(newFileBackend(path), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if !cfg.Server.MCP {
		t.Error("Server.MCP = false, want true")
	}
	if cfg.Ollama.ChatModel != "qwen2.5" {
		t.Errorf("Ollama.ChatModel = %q", cfg.Ollama.ChatModel)
	}
	if cfg.Storage.DataDir != "/tmp/hrassist-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Chunk.Size != 800 || cfg.Chunk.Overlap != 100 {
		t.Errorf("Chunk = %+v", cfg.Chunk)
	}
	if cfg.Retrieval.MinScore != 0.45 {
		t.Errorf("Retrieval.MinScore = %v", cfg.Retrieval.MinScore)
	}
	if cfg.Timeouts.Tool != 2*time.Second {
		t.Errorf("Timeouts.Tool = %v", cfg.Timeouts.Tool)
	}
	if !cfg.Documents.Watch {
		t.Error("Documents.Watch = false, want true")
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 9000}`)
	t.Setenv("HRASSIST_SERVER_PORT", "9100")
	t.Setenv("HRASSIST_TIMEOUTS_MODEL", "45s")

	cfg, err := loadWith(newFileBackend(path), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Timeouts.Model != 45*time.Second {
		t.Errorf("Timeouts.Model = %v, want 45s", cfg.Timeouts.Model)
	}
}

// TestEnvFile verifies .env values apply but never override the real environment.
func TestEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("HRASSIST_HR_DEFAULT_EMPLOYEE")
	os.Unsetenv("HRASSIST_CHUNK_SIZE")
	t.Cleanup(func() {
		os.Unsetenv("HRASSIST_HR_DEFAULT_EMPLOYEE")
		os.Unsetenv("HRASSIST_CHUNK_SIZE")
	})
	t.Setenv("HRASSIST_LOG_LEVEL", "warn")

	env := writeEnvFile(t, "HRASSIST_HR_DEFAULT_EMPLOYEE=EMP002\nHRASSIST_CHUNK_SIZE=600\nHRASSIST_LOG_LEVEL=debug\n")
	cfg, err := loadWith(newFileBackend(writeTempConfig(t, `{}`)), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HR.DefaultEmployee != "EMP002" {
		t.Errorf("HR.DefaultEmployee = %q, want EMP002", cfg.HR.DefaultEmployee)
	}
	if cfg.Chunk.Size != 600 {
		t.Errorf("Chunk.Size = %d, want 600", cfg.Chunk.Size)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn from the real environment", cfg.Log.Level)
	}
}

func TestMissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	_, err := loadWith(newFileBackend(writeTempConfig(t, `{}`)), filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantKey string
	}{
		{"overlap not below size", `{"chunk.size": 100, "chunk.overlap": 100}`, "chunk.overlap"},
		{"port out of range", `{"server.port": 70000}`, "server.port"},
		{"unknown provider", `{"engine.provider": "llamacpp"}`, "engine.provider"},
		{"bad log level", `{"log.level": "verbose"}`, "log.level"},
		{"bad hr url", `{"hr.base_url": "not a url"}`, "hr.base_url"},
		{"zero top k", `{"retrieval.top_k": 0}`, "retrieval.top_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(newFileBackend(writeTempConfig(t, tt.file)), "")
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("error = %q, want it to name %q", err.Error(), tt.wantKey)
			}
		})
	}
}

// TestMissingRequiredField verifies a clear error when the OpenAI key is missing.
func TestMissingRequiredField(t *testing.T) {
	clearEnv(t)
	t.Setenv("HRASSIST_ENGINE_PROVIDER", "openai")

	_, err := loadWith(newFileBackend(writeTempConfig(t, `{}`)), "")
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err.Error())
	}

	t.Setenv("HRASSIST_OPENAI_API_KEY", "sk-test")
	cfg, err := loadWith(newFileBackend(writeTempConfig(t, `{}`)), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("OpenAI.APIKey = %q", cfg.OpenAI.APIKey)
	}
}

func TestSetKeyAndShowAll(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "chunk.size", "700"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "timeouts.tool", "3s"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "chunk.size", "big"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKey(b, "openai.api_key", "sk"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKey(b, "nope", "1"); err == nil {
		t.Error("expected error for unknown key")
	}

	t.Setenv("HRASSIST_OPENAI_API_KEY", "sk-secret")
	cfg, err := loadWith(newFileBackend(path), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chunk.Size != 700 || cfg.Timeouts.Tool != 3*time.Second {
		t.Errorf("persisted values not loaded: %+v %+v", cfg.Chunk, cfg.Timeouts)
	}

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "openai.api_key" && ki.Value != "********" {
			t.Errorf("secret shown as %q", ki.Value)
		}
	}
	for _, k := range ValidKeys() {
		if k == "openai.api_key" {
			t.Error("ValidKeys lists a secret")
		}
	}
}
