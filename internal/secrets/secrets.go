package secrets

import (
	"fmt"
	"os"

	"codeberg.org/modelrelay/relay/internal/core"
)

// Provider resolves the opaque credential a backend client authenticates
// with. Credentials are handed straight to the client adapter and never
// logged or inspected elsewhere.
type Provider interface {
	Credential(backend core.BackendDescriptor) (string, error)
}

// EnvProvider resolves credentials from the environment. The descriptor's
// CredentialEnv wins; otherwise the provider's conventional variable is used.
type EnvProvider struct{}

// Credential returns the credential for the backend.
func (EnvProvider) Credential(backend core.BackendDescriptor) (string, error) {
	name := backend.CredentialEnv
	if name == "" {
		name = defaultEnvVar(backend.Provider)
	}

	if name == "" {
		return "", fmt.Errorf("no credential source known for provider %q", backend.Provider)
	}

	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("credential variable %s is not set", name)
	}

	return value, nil
}

// Static resolves credentials from a fixed map keyed by backend id.
type Static map[string]string

// Credential returns the credential for the backend.
func (s Static) Credential(backend core.BackendDescriptor) (string, error) {
	value, ok := s[backend.ID]
	if !ok || value == "" {
		return "", fmt.Errorf("no credential for backend %q", backend.ID)
	}

	return value, nil
}

// maps a provider name to its conventional credential variable
func defaultEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "github_models":
		return "GITHUB_MODELS_TOKEN"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
