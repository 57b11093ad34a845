package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ExportEnv reads every inventory parameter present in SSM and writes them
// to a dotenv file for local development. Parameters that are not set are
// left out. The file is created with 0600 permissions.
func ExportEnv(ctx context.Context, m *SSMManager, inventory []Parameter, path string) (int, error) {
	env := map[string]string{"APP_ENV": "local"}
	for _, p := range inventory {
		full := m.Path(p.Key)
		ok, err := m.Exists(ctx, full)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		v, err := m.Value(ctx, full)
		if err != nil {
			return 0, err
		}
		env[p.EnvVar] = v
	}

	if _, err := os.Stat(path); err == nil {
		return 0, fmt.Errorf("%s already exists, move it aside first", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	if err := godotenv.Write(env, path); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return 0, fmt.Errorf("restricting %s: %w", path, err)
	}
	return len(env) - 1, nil
}
