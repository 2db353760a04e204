package contract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const logPrefix = "contract:loader"

// Load reads the contract from file paths or environment. Paths are tried in
// order: any paths passed in, then COURIER_CONTRACT_FILE, then defaults. An
// explicit path (e.g. from "contract validate my.json") wins over the env var.
func Load(paths ...string) (*Contract, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("COURIER_CONTRACT_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/contract.json", "contract.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var c Contract
		if err := json.Unmarshal(data, &c); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse contract file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded contract %s %s from %s", logPrefix, c.Name, c.Version, p))
		return &c, nil
	}

	slog.Info(fmt.Sprintf("%s - No contract file found, using empty default", logPrefix))
	return Default(), nil
}

// Default returns the embedded fallback contract: no declared messages, so
// verification constrains nothing.
func Default() *Contract {
	return &Contract{
		Name:     "courier-default",
		Version:  "0.0.0",
		Messages: map[string]Message{},
	}
}
