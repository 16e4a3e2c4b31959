package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ModelEndpoint is one row of the model routing table.
type ModelEndpoint struct {
	Model    string `yaml:"model" toml:"model" validate:"required"`
	URL      string `yaml:"url" toml:"url" validate:"omitempty,url"`
	Provider string `yaml:"provider" toml:"provider" validate:"oneof=ollama anthropic gemini"`
}

type endpointsFile struct {
	Endpoints []ModelEndpoint `yaml:"endpoints" toml:"endpoints"`
}

var knownProviders = map[string]bool{"ollama": true, "anthropic": true, "gemini": true}

// ParseEndpoints reads "model=url,model=url". A value may carry a provider
// prefix ("claude-3-5-haiku=anthropic:" or "gemini-2.0-flash=gemini:https://...");
// bare URLs are Ollama endpoints.
func ParseEndpoints(raw string) ([]ModelEndpoint, error) {
	var out []ModelEndpoint
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		model, value, ok := strings.Cut(item, "=")
		model = strings.TrimSpace(model)
		if !ok || model == "" {
			return nil, fmt.Errorf("invalid LLM_ENDPOINTS entry %q: want model=url", item)
		}

		endpoint := ModelEndpoint{Model: model, Provider: "ollama", URL: strings.TrimSpace(value)}
		if prefix, rest, found := strings.Cut(endpoint.URL, ":"); found && knownProviders[strings.ToLower(prefix)] {
			endpoint.Provider = strings.ToLower(prefix)
			endpoint.URL = strings.TrimSpace(rest)
		}
		out = append(out, endpoint)
	}
	return out, nil
}

// LoadEndpointsFile reads a YAML (.yaml, .yml) or TOML (.toml) file with a
// top-level "endpoints" list.
func LoadEndpointsFile(path string) ([]ModelEndpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoints file: %w", err)
	}

	var file endpointsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".toml":
		err = toml.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("unsupported endpoints file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse endpoints file %s: %w", path, err)
	}

	for i := range file.Endpoints {
		file.Endpoints[i].Model = strings.TrimSpace(file.Endpoints[i].Model)
		if file.Endpoints[i].Provider == "" {
			file.Endpoints[i].Provider = "ollama"
		}
	}
	return file.Endpoints, nil
}
