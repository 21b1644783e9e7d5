// Provider configuration - upstream overrides, pricing, and capabilities.
//
// DESIGN: The registry ships working defaults for every vendor; this file
// only holds deployment-specific overrides. Pricing drives cost-savings
// accounting for tool-output compression; capabilities mark models that
// reject image input so the transformer can strip before forwarding.
package config

import (
	"fmt"
	"strings"
)

// ProvidersConfig maps a provider name to its overrides.
type ProvidersConfig map[string]ProviderConfig

// ProviderConfig contains per-provider overrides.
type ProviderConfig struct {
	// BaseURL overrides the built-in upstream URL. Mainly for self-hosted
	// vLLM and Ollama deployments, or corporate proxies.
	BaseURL string `yaml:"base_url"`

	// APIKey, when set, is used instead of the key from the client request.
	// Supports ${VAR} expansion.
	APIKey string `yaml:"api_key"`
}

// Validate checks provider overrides.
func (p ProvidersConfig) Validate() error {
	for name, cfg := range p {
		if name == "" {
			return fmt.Errorf("providers: empty provider name")
		}
		if cfg.BaseURL != "" && !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
			return fmt.Errorf("providers.%s.base_url must start with http:// or https://", name)
		}
	}
	return nil
}

// PricingConfig maps a model name prefix to its input price per million
// tokens in USD. Longest prefix wins.
type PricingConfig map[string]float64

// Validate checks pricing entries.
func (p PricingConfig) Validate() error {
	for model, price := range p {
		if model == "" {
			return fmt.Errorf("pricing: empty model name")
		}
		if price < 0 {
			return fmt.Errorf("pricing.%s must not be negative", model)
		}
	}
	return nil
}

// CapabilitiesConfig overrides model capability detection.
type CapabilitiesConfig struct {
	// NoImageModels lists model name fragments that reject image input,
	// replacing the built-in list when non-empty.
	NoImageModels []string `yaml:"no_image_models"`
}
