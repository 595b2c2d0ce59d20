package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSecretNotFound is returned when a secret has never been stored.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore holds credentials outside the main config file.
type SecretStore interface {
	Get(name string) (string, error)
	Set(name, value string) error
}

// fileSecrets keeps secrets as a flat JSON object in a 0600 file.
type fileSecrets struct {
	path string
}

func newFileSecrets(path string) *fileSecrets {
	return &fileSecrets{path: path}
}

func (s *fileSecrets) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return secrets, nil
}

func (s *fileSecrets) Get(name string) (string, error) {
	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	val, ok := secrets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return val, nil
}

func (s *fileSecrets) Set(name, value string) error {
	secrets, err := s.read()
	if err != nil {
		return err
	}
	secrets[name] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0o600)
}

// adminTokenSecret names the generated static admin token.
const adminTokenSecret = "auth.admin_token"

// EnsureAdminToken fills cfg.Auth.AdminToken, generating and storing a new
// random token the first time.
func EnsureAdminToken(cfg *Config) (generated bool, err error) {
	return ensureAdminToken(cfg, newFileSecrets(secretsFilePath()))
}

func ensureAdminToken(cfg *Config, secrets SecretStore) (bool, error) {
	if cfg.Auth.AdminToken != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generating admin token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := secrets.Set(adminTokenSecret, token); err != nil {
		return false, fmt.Errorf("storing admin token: %w", err)
	}
	cfg.Auth.AdminToken = token
	return true, nil
}
