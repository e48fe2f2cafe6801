package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PersistSecretKey writes a generated vault key back into the configuration
// file at path so the same key is used on every subsequent start. Other keys
// already present in the file are preserved; the file is created with 0600
// permissions when missing.
//
// The write is atomic (temp file + rename) so a crash cannot leave a
// half-written configuration behind.
func PersistSecretKey(path, key string) error {
	if path == "" {
		return fmt.Errorf("configuration path is required to persist the secret key")
	}

	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	vault, _ := doc["vault"].(map[string]any)
	if vault == nil {
		vault = map[string]any{}
	}
	vault["secret_key"] = key
	doc["vault"] = vault

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace configuration file %q: %w", path, err)
	}

	return nil
}
