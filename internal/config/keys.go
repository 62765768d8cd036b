package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "HRASSIST_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp", typ: kBool, env: "HRASSIST_SERVER_MCP",
		apply:   func(cfg *Config, v any) { cfg.Server.MCP = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCP },
	},
	{
		key: "engine.provider", typ: kString, env: "HRASSIST_ENGINE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Engine.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Provider },
	},
	{
		key: "ollama.base_url", typ: kString, env: "HRASSIST_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "HRASSIST_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "HRASSIST_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "openai.api_key", typ: kString, env: "HRASSIST_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "HRASSIST_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.chat_model", typ: kString, env: "HRASSIST_OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.embed_model", typ: kString, env: "HRASSIST_OPENAI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "HRASSIST_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "documents.dir", typ: kString, env: "HRASSIST_DOCUMENTS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Documents.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Documents.Dir },
	},
	{
		key: "documents.watch", typ: kBool, env: "HRASSIST_DOCUMENTS_WATCH",
		apply:   func(cfg *Config, v any) { cfg.Documents.Watch = v.(bool) },
		extract: func(cfg Config) any { return cfg.Documents.Watch },
	},
	{
		key: "hr.base_url", typ: kString, env: "HRASSIST_HR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.HR.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.HR.BaseURL },
	},
	{
		key: "hr.port", typ: kInt, env: "HRASSIST_HR_PORT",
		apply:   func(cfg *Config, v any) { cfg.HR.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.HR.Port },
	},
	{
		key: "hr.default_employee", typ: kString, env: "HRASSIST_HR_DEFAULT_EMPLOYEE",
		apply:   func(cfg *Config, v any) { cfg.HR.DefaultEmployee = v.(string) },
		extract: func(cfg Config) any { return cfg.HR.DefaultEmployee },
	},
	{
		key: "tools.catalog", typ: kString, env: "HRASSIST_TOOLS_CATALOG",
		apply:   func(cfg *Config, v any) { cfg.Tools.Catalog = v.(string) },
		extract: func(cfg Config) any { return cfg.Tools.Catalog },
	},
	{
		key: "tools.rate_per_second", typ: kFloat, env: "HRASSIST_TOOLS_RATE_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Tools.RatePerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Tools.RatePerSecond },
	},
	{
		key: "chunk.size", typ: kInt, env: "HRASSIST_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Chunk.Size = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunk.Size },
	},
	{
		key: "chunk.overlap", typ: kInt, env: "HRASSIST_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Chunk.Overlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunk.Overlap },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "HRASSIST_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.max_context_chars", typ: kInt, env: "HRASSIST_RETRIEVAL_MAX_CONTEXT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxContextChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxContextChars },
	},
	{
		key: "retrieval.min_score", typ: kFloat, env: "HRASSIST_RETRIEVAL_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinScore },
	},
	{
		key: "agent.max_tool_iterations", typ: kInt, env: "HRASSIST_AGENT_MAX_TOOL_ITERATIONS",
		apply:   func(cfg *Config, v any) { cfg.Agent.MaxToolIterations = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.MaxToolIterations },
	},
	{
		key: "agent.history_turns", typ: kInt, env: "HRASSIST_AGENT_HISTORY_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Agent.HistoryTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.HistoryTurns },
	},
	{
		key: "agent.session_idle", typ: kDuration, env: "HRASSIST_AGENT_SESSION_IDLE",
		apply:   func(cfg *Config, v any) { cfg.Agent.SessionIdle = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Agent.SessionIdle },
	},
	{
		key: "timeouts.model", typ: kDuration, env: "HRASSIST_TIMEOUTS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Timeouts.Model = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timeouts.Model },
	},
	{
		key: "timeouts.embed", typ: kDuration, env: "HRASSIST_TIMEOUTS_EMBED",
		apply:   func(cfg *Config, v any) { cfg.Timeouts.Embed = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timeouts.Embed },
	},
	{
		key: "timeouts.tool", typ: kDuration, env: "HRASSIST_TIMEOUTS_TOOL",
		apply:   func(cfg *Config, v any) { cfg.Timeouts.Tool = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timeouts.Tool },
	},
	{
		key: "log.level", typ: kString, env: "HRASSIST_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parse converts a raw string to the Go type of the key.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
