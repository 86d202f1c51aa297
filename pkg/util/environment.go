package util

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		pair := strings.SplitN(variable, "=", 2)
		if len(pair) != 2 {
			continue
		}

		environmentVariables[pair[0]] = pair[1]
	}

	return environmentVariables
}

// EnvString returns env[key] or the fallback when unset or blank
func EnvString(env map[string]string, key string, fallback string) string {
	if value := strings.TrimSpace(env[key]); value != "" {
		return value
	}

	return fallback
}

func EnvDuration(env map[string]string, key string, fallback time.Duration) time.Duration {
	if value := strings.TrimSpace(env[key]); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}

	return fallback
}

func EnvInt(env map[string]string, key string, fallback int) int {
	if value := strings.TrimSpace(env[key]); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}

	return fallback
}

func EnvBool(env map[string]string, key string, fallback bool) bool {
	switch strings.ToUpper(strings.TrimSpace(env[key])) {
	case "YES", "TRUE", "1":
		return true
	case "NO", "FALSE", "0":
		return false
	}

	return fallback
}

// EnvList splits a comma separated variable, dropping empty items
func EnvList(env map[string]string, key string) []string {
	value := strings.TrimSpace(env[key])
	if value == "" {
		return nil
	}

	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}

	return list
}
