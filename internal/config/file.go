package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the optional YAML file. Zero values mean "not set".
type fileConfig struct {
	Embedder struct {
		Type        string `yaml:"type"`
		BaseURL     string `yaml:"base_url"`
		APIKeyEnv   string `yaml:"api_key_env"`
		Model       string `yaml:"model"`
		Dimensions  int    `yaml:"dimensions"`
		TimeoutSecs int    `yaml:"timeout_secs"`
	} `yaml:"embedder"`
	VectorStore struct {
		Dir string `yaml:"dir"`
	} `yaml:"vector_store"`
	RAG struct {
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
		TopK         int    `yaml:"top_k"`
		HistoryLimit int    `yaml:"history_limit"`
		SystemPrompt string `yaml:"system_prompt"`
		IngestDir    string `yaml:"ingest_dir"`
	} `yaml:"rag"`
}

// loadFile reads the YAML file at path. An empty path or a missing file
// yields an empty config.
func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse config file %s: %v", ErrConfiguration, path, err)
	}
	return cfg, nil
}
