package cmd

import (
	"encoding/json"
	"fmt"
	"os"
)

var outFilePerm = os.FileMode(0o644)

func loadJSON[X any](path string) (*X, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()
	var out X
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", path, err)
	}
	return &out, nil
}

func writeJSON[X any](path string, value X) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}
