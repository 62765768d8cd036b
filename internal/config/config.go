package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Storage   StorageConfig
	Documents DocumentsConfig
	HR        HRConfig
	Tools     ToolsConfig
	Chunk     ChunkConfig
	Retrieval RetrievalConfig
	Agent     AgentConfig
	Timeouts  TimeoutsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int `validate:"min=1,max=65535"`
	MCP  bool
}

type EngineConfig struct {
	Provider string `validate:"oneof=ollama openai"`
}

type OllamaConfig struct {
	BaseURL    string `validate:"required,url"`
	ChatModel  string `validate:"required"`
	EmbedModel string `validate:"required"`
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string `validate:"omitempty,url"`
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string `validate:"required"`
}

type DocumentsConfig struct {
	Dir   string
	Watch bool
}

type HRConfig struct {
	BaseURL         string `validate:"required,url"`
	Port            int    `validate:"min=1,max=65535"`
	DefaultEmployee string `validate:"required"`
}

type ToolsConfig struct {
	Catalog       string
	RatePerSecond float64 `validate:"gte=0"`
}

type ChunkConfig struct {
	Size    int `validate:"gt=0"`
	Overlap int `validate:"gte=0,ltfield=Size"`
}

type RetrievalConfig struct {
	TopK            int     `validate:"gt=0"`
	MaxContextChars int     `validate:"gt=0"`
	MinScore        float64 `validate:"gte=-1,lte=1"`
}

type AgentConfig struct {
	MaxToolIterations int           `validate:"gte=0"`
	HistoryTurns      int           `validate:"gt=0"`
	SessionIdle       time.Duration `validate:"gt=0"`
}

type TimeoutsConfig struct {
	Model time.Duration `validate:"gt=0"`
	Embed time.Duration `validate:"gt=0"`
	Tool  time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Engine: EngineConfig{
			Provider: "ollama",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Documents: DocumentsConfig{
			Dir: "./documents",
		},
		HR: HRConfig{
			BaseURL:         "http://localhost:8001",
			Port:            8001,
			DefaultEmployee: "EMP001",
		},
		Tools: ToolsConfig{
			RatePerSecond: 5,
		},
		Chunk: ChunkConfig{
			Size:    500,
			Overlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			MaxContextChars: 4000,
			MinScore:        0.3,
		},
		Agent: AgentConfig{
			MaxToolIterations: 3,
			HistoryTurns:      10,
			SessionIdle:       24 * time.Hour,
		},
		Timeouts: TimeoutsConfig{
			Model: 120 * time.Second,
			Embed: 30 * time.Second,
			Tool:  5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, a .env file in the
// working directory, and environment variables, in increasing order of
// precedence. Variables already set in the environment win over .env.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()), ".env")
}

func loadWith(b ConfigBackend, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks value ranges and cross-field constraints.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fieldKey(fe.Namespace()), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Engine.Provider == "openai" && cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("missing required config: OpenAI API key. Set it via environment variable HRASSIST_OPENAI_API_KEY")
	}
	return nil
}

// fieldKey maps a validator namespace such as "Config.Chunk.Overlap" to the
// dotted config key "chunk.overlap" when one exists.
func fieldKey(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) < 3 {
		return ns
	}
	section, field := strings.ToLower(parts[1]), strings.ToLower(parts[2])
	for _, s := range specs {
		if strings.ReplaceAll(s.key, "_", "") == section+"."+field {
			return s.key
		}
	}
	return ns
}
