package util

import (
	"encoding/json"
	"errors"
	"os"
)

// ErrNoSnapshot is returned by LoadJSON when the file does not exist yet.
var ErrNoSnapshot = errors.New("snapshot not found")

// LoadJSON reads a JSON snapshot from path into v.
func LoadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoSnapshot
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// SaveJSON writes v to path atomically, keeping a best-effort .bak copy.
func SaveJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_ = os.WriteFile(path+".bak", b, 0o600)
	return writeFileAtomic(path, b, 0o600)
}
