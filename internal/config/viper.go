// Package config reads settings that may come from the environment or from
// the viper configuration.
package config

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/agentstation/rebase/pkg/errors"
)

// GetString is a helper to get string values from Viper.
// It checks both OS environment variables and Viper configuration.
func GetString(key string) string {
	osValue := os.Getenv(key)
	viperValue := viper.GetString(key)

	// If Viper doesn't have it but OS does, return OS value
	if viperValue == "" && osValue != "" {
		return osValue
	}
	return viperValue
}

// First returns the first non-empty value among keys.
func First(keys ...string) string {
	for _, key := range keys {
		if v := GetString(key); v != "" {
			return v
		}
	}
	return ""
}

// GetDuration reads a duration such as "1500ms" or "2s". An unset key
// yields def.
func GetDuration(key string, def time.Duration) (time.Duration, error) {
	raw := GetString(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.NewConfigError(key, "invalid duration "+raw, err)
	}
	return d, nil
}
