package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves secrets directly from OS environment variables.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch returns the keys present in the environment; missing
// keys are omitted so the loader can report them together.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}

// ProviderFromEnv returns the SSM provider when AWS_REGION is set and the
// environment provider otherwise, in which case *_SSM_PARAM pointers name
// other environment variables.
func ProviderFromEnv() SecretProvider {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return NewSSMProvider(region, os.Getenv("AWS_ENDPOINT_URL"))
	}
	return NewEnvVarProvider()
}
