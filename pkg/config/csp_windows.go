//go:build windows

// pkg/config/csp_windows.go - CSP OMA-URI registry fallback for configuration.

package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// LoadConfigFromCSP loads configuration from Windows CSP OMA-URI registry
// settings. This serves as a fallback when the Config.yaml file doesn't exist.
func LoadConfigFromCSP() (*Configuration, error) {
	config := GetDefaultConfig()

	if err := loadCSPFromRegistryPath(CSPRegistryPath, config); err != nil {
		return nil, fmt.Errorf("failed to load from CSP registry path: %v", err)
	}

	log.Printf("Loaded CSP configuration from registry path: %s", CSPRegistryPath)

	config.applyDefaults()
	if err := config.ensureDirectories(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadCSPFromRegistryPath loads configuration values from a specific registry path.
func loadCSPFromRegistryPath(registryPath string, config *Configuration) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, registryPath, registry.READ)
	if err != nil {
		return fmt.Errorf("failed to open CSP registry key %s: %v", registryPath, err)
	}
	defer key.Close()

	loadStringFromRegistry(key, "LogLevel", &config.LogLevel)
	loadStringFromRegistry(key, "LogPath", &config.LogPath)
	loadStringFromRegistry(key, "SnapshotsPath", &config.SnapshotsPath)
	loadStringFromRegistry(key, "ReportsPath", &config.ReportsPath)

	loadIntFromRegistry(key, "MaxWorkers", &config.MaxWorkers)
	loadIntFromRegistry(key, "PackageTimeoutSeconds", &config.PackageTimeoutSeconds)
	loadIntFromRegistry(key, "LongOpTimeoutSeconds", &config.LongOpTimeoutSeconds)

	loadBoolFromRegistry(key, "Debug", &config.Debug)
	loadBoolFromRegistry(key, "Verbose", &config.Verbose)
	loadBoolFromRegistry(key, "CheckOnly", &config.CheckOnly)
	loadBoolFromRegistry(key, "FullScanOnEmptyDiff", &config.FullScanOnEmptyDiff)

	loadStringArrayFromRegistry(key, "Bloatware", &config.Bloatware)
	loadStringArrayFromRegistry(key, "CustomBloatware", &config.CustomBloatware)
	loadStringArrayFromRegistry(key, "EssentialApps", &config.EssentialApps)
	loadStringArrayFromRegistry(key, "CustomEssential", &config.CustomEssential)
	loadStringArrayFromRegistry(key, "ProtectedApps", &config.ProtectedApps)

	return nil
}

// loadStringFromRegistry loads a string value from registry if it exists.
func loadStringFromRegistry(key registry.Key, valueName string, target *string) {
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		*target = val
		log.Printf("CSP: Loaded %s = %s", valueName, val)
	}
}

// loadBoolFromRegistry loads a boolean value from registry if it exists.
// Accepts various formats: "true"/"false", "1"/"0", DWORD 1/0
func loadBoolFromRegistry(key registry.Key, valueName string, target *bool) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.ParseBool(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %t", valueName, parsed)
			return
		}
	}

	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = val != 0
		log.Printf("CSP: Loaded %s = %t", valueName, val != 0)
	}
}

// loadIntFromRegistry loads an integer value from registry if it exists.
func loadIntFromRegistry(key registry.Key, valueName string, target *int) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.Atoi(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %d", valueName, parsed)
			return
		}
	}

	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = int(val)
		log.Printf("CSP: Loaded %s = %d", valueName, int(val))
	}
}

// loadStringArrayFromRegistry loads a string array from registry.
// Arrays can be stored as comma-separated values or multi-string (REG_MULTI_SZ).
func loadStringArrayFromRegistry(key registry.Key, valueName string, target *[]string) {
	if vals, _, err := key.GetStringsValue(valueName); err == nil && len(vals) > 0 {
		filtered := make([]string, 0, len(vals))
		for _, val := range vals {
			if strings.TrimSpace(val) != "" {
				filtered = append(filtered, strings.TrimSpace(val))
			}
		}
		if len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
			return
		}
	}

	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		parts := strings.Split(val, ",")
		filtered := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				filtered = append(filtered, trimmed)
			}
		}
		if len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
		}
	}
}
