package config

import "testing"

func TestBloatwarePatternsMergesCustom(t *testing.T) {
	cfg := &Configuration{
		Bloatware:       []string{"Microsoft.XboxApp", "Microsoft.People"},
		CustomBloatware: []string{"Vendor.CrapApp", "Microsoft.XboxApp"},
	}

	merged := cfg.BloatwarePatterns()
	if len(merged) != 3 {
		t.Fatalf("got %d patterns, want 3 (duplicate dropped): %v", len(merged), merged)
	}
	// Built-in entries come first, custom entries keep their order after.
	if merged[0] != "Microsoft.XboxApp" || merged[2] != "Vendor.CrapApp" {
		t.Errorf("unexpected order: %v", merged)
	}
}

func TestMergeIsCaseAndSpaceInsensitive(t *testing.T) {
	cfg := &Configuration{
		EssentialApps:   []string{"Google.Chrome"},
		CustomEssential: []string{"google.chrome", "Google . Chrome", "Mozilla.Firefox"},
	}
	merged := cfg.EssentialPatterns()
	if len(merged) != 2 {
		t.Errorf("got %d patterns, want 2: %v", len(merged), merged)
	}
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Configuration{LogLevel: "DEBUG", MaxWorkers: 2}
	cfg.applyDefaults()

	if cfg.LogLevel != "DEBUG" {
		t.Errorf("explicit LogLevel overwritten: %s", cfg.LogLevel)
	}
	if cfg.MaxWorkers != 2 {
		t.Errorf("explicit MaxWorkers overwritten: %d", cfg.MaxWorkers)
	}
	if cfg.PackageTimeoutSeconds != 300 || cfg.LongOpTimeoutSeconds != 3600 {
		t.Errorf("timeout defaults not applied: %d, %d",
			cfg.PackageTimeoutSeconds, cfg.LongOpTimeoutSeconds)
	}
	if len(cfg.Bloatware) == 0 {
		t.Error("built-in bloatware list not applied")
	}
	if len(cfg.ProtectedApps) == 0 {
		t.Error("built-in protected list not applied")
	}
}

func TestDefaultsDoNotOverlapProtected(t *testing.T) {
	protected := make(map[string]struct{})
	for _, p := range defaultProtectedApps() {
		protected[normalizeKey(p)] = struct{}{}
	}
	for _, b := range defaultBloatware() {
		if _, ok := protected[normalizeKey(b)]; ok {
			t.Errorf("%q is both bloatware and protected", b)
		}
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.PackageTimeout().Seconds() != 300 {
		t.Errorf("PackageTimeout = %v", cfg.PackageTimeout())
	}
	if cfg.LongOpTimeout().Seconds() != 3600 {
		t.Errorf("LongOpTimeout = %v", cfg.LongOpTimeout())
	}
}
