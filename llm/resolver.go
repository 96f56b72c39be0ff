package llm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"goa.design/completions/provider"
)

// ErrUnknownModel reports a model identifier with no configuration. It is a
// configuration error surfaced to the caller as-is.
var ErrUnknownModel = errors.New("llm: unknown model")

type (
	// ModelConfig is the persisted configuration of one logical model: which
	// dialect speaks to it, where, and with what credentials.
	ModelConfig struct {
		// ID is the logical identifier callers resolve.
		ID string `yaml:"id"`
		// Provider selects the wire dialect.
		Provider provider.Kind `yaml:"provider"`
		// Name is the vendor-side model name sent on the wire.
		Name string `yaml:"name"`
		// URL is the completion endpoint.
		URL string `yaml:"url"`
		// APIKey authenticates requests.
		APIKey string `yaml:"api_key"`
		// MaxTokens caps the response length when the caller does not.
		MaxTokens int `yaml:"max_tokens"`
		// XMLTools disables native function calling: tools are described
		// to the model in the system prompt and invocations come back as
		// XML blocks in the text stream.
		XMLTools bool `yaml:"xml_tools"`
	}

	// Resolver maps logical model identifiers to configurations. The
	// production implementation typically fronts a database; StaticResolver
	// serves file-driven and test setups.
	Resolver interface {
		Resolve(id string) (ModelConfig, error)
	}

	// StaticResolver resolves from an in-memory table.
	StaticResolver map[string]ModelConfig
)

// Resolve implements Resolver.
func (r StaticResolver) Resolve(id string) (ModelConfig, error) {
	cfg, ok := r[id]
	if !ok {
		return ModelConfig{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return cfg, nil
}

// LoadResolver reads a YAML model configuration document:
//
//	models:
//	  - id: claude
//	    provider: anthropic
//	    name: claude-sonnet-4-5
//	    url: https://api.anthropic.com/v1/messages
//	    api_key: sk-...
func LoadResolver(r io.Reader) (StaticResolver, error) {
	var doc struct {
		Models []ModelConfig `yaml:"models"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("llm: decode model configuration: %w", err)
	}
	out := make(StaticResolver, len(doc.Models))
	for _, cfg := range doc.Models {
		if cfg.ID == "" {
			return nil, errors.New("llm: model configuration entry missing id")
		}
		if _, err := provider.New(cfg.Provider, provider.Options{}); err != nil {
			return nil, fmt.Errorf("llm: model %q: %w", cfg.ID, err)
		}
		out[cfg.ID] = cfg
	}
	return out, nil
}

// LoadResolverFile is LoadResolver over a file path.
func LoadResolverFile(path string) (StaticResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("llm: open model configuration: %w", err)
	}
	defer f.Close()
	return LoadResolver(f)
}
