// Package config loads docsentry settings from flags, environment and an optional YAML file
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. DOCSENTRY_OLLAMA_URL
const EnvPrefix = "DOCSENTRY"

// AuthenticityDimension is the only feature-vector length the authenticity index accepts
const AuthenticityDimension = 100

// Config is the root configuration
type Config struct {
	DataDir      string             `yaml:"data_dir" mapstructure:"data_dir"`
	Ollama       OllamaConfig       `yaml:"ollama" mapstructure:"ollama"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge" mapstructure:"knowledge"`
	Authenticity AuthenticityConfig `yaml:"authenticity" mapstructure:"authenticity"`
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}

// OllamaConfig configures the embedding and generation collaborators
type OllamaConfig struct {
	URL        string        `yaml:"url" mapstructure:"url"`
	EmbedModel string        `yaml:"embed_model" mapstructure:"embed_model"`
	TextModel  string        `yaml:"text_model" mapstructure:"text_model"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// KnowledgeConfig configures chunking and retrieval for the knowledge base
type KnowledgeConfig struct {
	Dimension    int `yaml:"dimension" mapstructure:"dimension"`
	ChunkWords   int `yaml:"chunk_words" mapstructure:"chunk_words"`
	OverlapWords int `yaml:"overlap_words" mapstructure:"overlap_words"`
	TopK         int `yaml:"top_k" mapstructure:"top_k"`
	SnippetChars int `yaml:"snippet_chars" mapstructure:"snippet_chars"`
}

// AuthenticityConfig configures the authenticity scorer
type AuthenticityConfig struct {
	Dimension int     `yaml:"dimension" mapstructure:"dimension"`
	Neighbors int     `yaml:"neighbors" mapstructure:"neighbors"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// ExtractConfig locates the external text-extraction tools
type ExtractConfig struct {
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	TesseractArgs string `yaml:"tesseract_args" mapstructure:"tesseract_args"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type MetricsConfig struct {
	// Textfile, when set, receives a node-exporter textfile dump after each command
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LoadDotEnv reads a .env file from the working directory; a missing file is fine
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load resolves the configuration held by v, applying defaults and environment overrides
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	v.SetDefault("data_dir", filepath.Join(home, ".docsentry"))

	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("ollama.embed_model", "qwen:1.8b")
	v.SetDefault("ollama.text_model", "qwen:1.8b")
	v.SetDefault("ollama.timeout", 2*time.Minute)
	v.SetDefault("ollama.max_retries", 2)

	v.SetDefault("knowledge.dimension", 2048)
	v.SetDefault("knowledge.chunk_words", 500)
	v.SetDefault("knowledge.overlap_words", 50)
	v.SetDefault("knowledge.top_k", 3)
	v.SetDefault("knowledge.snippet_chars", 200)

	v.SetDefault("authenticity.dimension", AuthenticityDimension)
	v.SetDefault("authenticity.neighbors", 3)
	v.SetDefault("authenticity.threshold", 0.6)

	v.SetDefault("extract.tesseract_path", "tesseract")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.tesseract_args", "--psm 6 --oem 3")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.textfile", "")
}

// Validate rejects settings the indices cannot run with
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if c.Ollama.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ollama.timeout must be positive, got %s", c.Ollama.Timeout))
	}
	if c.Ollama.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("ollama.max_retries must not be negative, got %d", c.Ollama.MaxRetries))
	}

	k := c.Knowledge
	if k.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("knowledge.dimension must be positive, got %d", k.Dimension))
	}
	if k.ChunkWords <= 0 {
		errs = append(errs, fmt.Errorf("knowledge.chunk_words must be positive, got %d", k.ChunkWords))
	}
	if k.OverlapWords < 0 || k.OverlapWords >= k.ChunkWords {
		errs = append(errs, fmt.Errorf("knowledge.overlap_words must be in [0, chunk_words), got %d", k.OverlapWords))
	}
	if k.TopK < 1 {
		errs = append(errs, fmt.Errorf("knowledge.top_k must be at least 1, got %d", k.TopK))
	}
	if k.SnippetChars <= 0 {
		errs = append(errs, fmt.Errorf("knowledge.snippet_chars must be positive, got %d", k.SnippetChars))
	}

	a := c.Authenticity
	if a.Dimension != AuthenticityDimension {
		errs = append(errs, fmt.Errorf("authenticity.dimension is fixed at %d, got %d", AuthenticityDimension, a.Dimension))
	}
	if a.Neighbors < 1 {
		errs = append(errs, fmt.Errorf("authenticity.neighbors must be at least 1, got %d", a.Neighbors))
	}
	if a.Threshold <= 0 || a.Threshold > 1 {
		errs = append(errs, fmt.Errorf("authenticity.threshold must be in (0, 1], got %g", a.Threshold))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// KnowledgeVectorsPath is the knowledge base vector file
func (c *Config) KnowledgeVectorsPath() string {
	return filepath.Join(c.DataDir, "knowledge", "vectors.bin")
}

// KnowledgeMetadataPath is the knowledge base chunk metadata file
func (c *Config) KnowledgeMetadataPath() string {
	return filepath.Join(c.DataDir, "knowledge", "metadata.db")
}

func (c *Config) AuthenticityVectorsPath() string {
	return filepath.Join(c.DataDir, "authenticity", "vectors.bin")
}

func (c *Config) AuthenticityMetadataPath() string {
	return filepath.Join(c.DataDir, "authenticity", "metadata.db")
}

// TesseractArgList splits the configured tesseract arguments on whitespace
func (c *Config) TesseractArgList() []string {
	return strings.Fields(c.Extract.TesseractArgs)
}
