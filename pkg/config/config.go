// pkg/config/config.go - configuration settings for Reclaim.

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigPath = `C:\ProgramData\Reclaim\Config.yaml`

// CSP OMA-URI registry path for enterprise policy configuration
const CSPRegistryPath = `SOFTWARE\Reclaim\Config`

// Configuration holds the configurable options for Reclaim in YAML format.
type Configuration struct {
	LogLevel      string `yaml:"LogLevel"`
	LogPath       string `yaml:"LogPath"`
	SnapshotsPath string `yaml:"SnapshotsPath"`
	ReportsPath   string `yaml:"ReportsPath"`
	Debug         bool   `yaml:"Debug"`
	Verbose       bool   `yaml:"Verbose"`
	CheckOnly     bool   `yaml:"CheckOnly"`

	// Pattern lists. Bloatware and EssentialApps are the built-in lists;
	// the Custom arrays are merged in at load time. ProtectedApps entries
	// are never acted on even when a bloatware pattern matches them.
	Bloatware       []string `yaml:"Bloatware"`
	CustomBloatware []string `yaml:"CustomBloatware"`
	EssentialApps   []string `yaml:"EssentialApps"`
	CustomEssential []string `yaml:"CustomEssential"`
	ProtectedApps   []string `yaml:"ProtectedApps"`

	// Convergence behavior
	MaxWorkers          int  `yaml:"MaxWorkers"`          // Concurrent action cap (default 8)
	FullScanOnEmptyDiff bool `yaml:"FullScanOnEmptyDiff"` // Reprocess everything when a diff against an existing snapshot is empty

	// Per-operation timeout settings
	PackageTimeoutSeconds int `yaml:"PackageTimeoutSeconds"` // Package manager operations (default 300)
	LongOpTimeoutSeconds  int `yaml:"LongOpTimeoutSeconds"`  // Servicing/image operations (default 3600)
}

// LoadConfig loads the configuration from a YAML file.
// If the YAML file doesn't exist, it falls back to CSP OMA-URI registry settings.
func LoadConfig() (*Configuration, error) {
	if _, err := os.Stat(ConfigPath); os.IsNotExist(err) {
		log.Printf("Configuration file does not exist: %s", ConfigPath)
		log.Printf("Attempting to load configuration from CSP OMA-URI registry settings...")

		config, cspErr := LoadConfigFromCSP()
		if cspErr == nil {
			log.Printf("Successfully loaded configuration from CSP OMA-URI registry settings")
			return config, nil
		}

		log.Printf("Failed to load from CSP registry: %v", cspErr)
		log.Printf("No configuration found, using built-in defaults")
		config = GetDefaultConfig()
		if err := config.ensureDirectories(); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(ConfigPath)
	if err != nil {
		log.Printf("Failed to read configuration file: %v", err)
		return nil, err
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		log.Printf("Failed to parse configuration file: %v", err)
		return nil, err
	}

	config.applyDefaults()
	if err := config.ensureDirectories(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the current configuration to a YAML file.
func SaveConfig(config *Configuration) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		log.Printf("Failed to serialize configuration: %v", err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(ConfigPath), 0755); err != nil {
		log.Printf("Failed to create configuration directory: %v", err)
		return err
	}

	if err := os.WriteFile(ConfigPath, data, 0644); err != nil {
		log.Printf("Failed to write configuration file: %v", err)
		return err
	}

	return nil
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		LogLevel:              "INFO",
		LogPath:               `C:\ProgramData\Reclaim\logs`,
		SnapshotsPath:         `C:\ProgramData\Reclaim\snapshots`,
		ReportsPath:           `C:\ProgramData\Reclaim\reports`,
		Debug:                 false,
		Verbose:               false,
		CheckOnly:             false,
		Bloatware:             defaultBloatware(),
		EssentialApps:         nil,
		ProtectedApps:         defaultProtectedApps(),
		MaxWorkers:            8,
		FullScanOnEmptyDiff:   false,
		PackageTimeoutSeconds: 300,
		LongOpTimeoutSeconds:  3600,
	}
}

// applyDefaults fills in zero values left by a sparse YAML file.
func (c *Configuration) applyDefaults() {
	def := GetDefaultConfig()
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = def.LogPath
	}
	if c.SnapshotsPath == "" {
		c.SnapshotsPath = def.SnapshotsPath
	}
	if c.ReportsPath == "" {
		c.ReportsPath = def.ReportsPath
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.PackageTimeoutSeconds <= 0 {
		c.PackageTimeoutSeconds = def.PackageTimeoutSeconds
	}
	if c.LongOpTimeoutSeconds <= 0 {
		c.LongOpTimeoutSeconds = def.LongOpTimeoutSeconds
	}
	if len(c.Bloatware) == 0 {
		c.Bloatware = def.Bloatware
	}
	if len(c.ProtectedApps) == 0 {
		c.ProtectedApps = def.ProtectedApps
	}
}

// ensureDirectories creates the state directories Reclaim writes to.
func (c *Configuration) ensureDirectories() error {
	for _, path := range []string{c.LogPath, c.SnapshotsPath, c.ReportsPath} {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %v", path, err)
		}
	}
	return nil
}

// BloatwarePatterns returns the merged built-in and user-supplied removal
// target list, in order.
func (c *Configuration) BloatwarePatterns() []string {
	return mergePatternLists(c.Bloatware, c.CustomBloatware)
}

// EssentialPatterns returns the merged built-in and user-supplied
// requirement list, in order.
func (c *Configuration) EssentialPatterns() []string {
	return mergePatternLists(c.EssentialApps, c.CustomEssential)
}

// mergePatternLists appends custom entries after the built-in entries,
// skipping empty strings and duplicates (case-insensitive).
func mergePatternLists(builtin, custom []string) []string {
	seen := make(map[string]struct{}, len(builtin)+len(custom))
	var merged []string
	for _, list := range [][]string{builtin, custom} {
		for _, entry := range list {
			if entry == "" {
				continue
			}
			key := normalizeKey(entry)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, entry)
		}
	}
	return merged
}

func normalizeKey(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		if ch == ' ' || ch == '\t' {
			continue
		}
		b = append(b, ch)
	}
	return string(b)
}

// PackageTimeout returns the per-invocation timeout for package manager
// operations.
func (c *Configuration) PackageTimeout() time.Duration {
	return time.Duration(c.PackageTimeoutSeconds) * time.Second
}

// LongOpTimeout returns the timeout for long-running servicing operations
// such as DISM image cleanup.
func (c *Configuration) LongOpTimeout() time.Duration {
	return time.Duration(c.LongOpTimeoutSeconds) * time.Second
}

// defaultBloatware is the built-in removal target list. Entries follow the
// publisher.appname convention where the publisher is known.
func defaultBloatware() []string {
	return []string{
		"Microsoft.3DBuilder",
		"Microsoft.BingFinance",
		"Microsoft.BingNews",
		"Microsoft.BingSports",
		"Microsoft.BingWeather",
		"Microsoft.GetHelp",
		"Microsoft.Getstarted",
		"Microsoft.Messaging",
		"Microsoft.Microsoft3DViewer",
		"Microsoft.MicrosoftOfficeHub",
		"Microsoft.MicrosoftSolitaireCollection",
		"Microsoft.MixedReality.Portal",
		"Microsoft.OneConnect",
		"Microsoft.People",
		"Microsoft.Print3D",
		"Microsoft.SkypeApp",
		"Microsoft.Wallet",
		"Microsoft.WindowsFeedbackHub",
		"Microsoft.WindowsMaps",
		"Microsoft.Xbox.TCUI",
		"Microsoft.XboxApp",
		"Microsoft.XboxGameOverlay",
		"Microsoft.XboxGamingOverlay",
		"Microsoft.XboxIdentityProvider",
		"Microsoft.XboxSpeechToTextOverlay",
		"Microsoft.ZuneMusic",
		"Microsoft.ZuneVideo",
		"king.com.CandyCrushSaga",
		"king.com.CandyCrushSodaSaga",
		"SpotifyAB.SpotifyMusic",
	}
}

// defaultProtectedApps lists entries that must never be removed even when a
// bloatware pattern matches them.
func defaultProtectedApps() []string {
	return []string{
		"Microsoft.WindowsStore",
		"Microsoft.WindowsCalculator",
		"Microsoft.WindowsTerminal",
		"Microsoft.DesktopAppInstaller",
		"Microsoft.SecHealthUI",
		"Microsoft.VCLibs",
		"Microsoft.NET",
		"Microsoft.UI.Xaml",
	}
}
