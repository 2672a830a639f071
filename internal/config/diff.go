package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	ProvidersChanged bool
	ProviderChanges  []ProviderDiff // per-kind diffs
}

// ProviderDiff describes what changed for a single provider kind between two
// configs.
type ProviderDiff struct {
	Kind             string // "llm", "tts", "ttm", or "audio"
	NameChanged      bool
	APIKeyChanged    bool
	ModelChanged     bool
	BaseURLChanged   bool
	FallbacksChanged bool
}

// Changed reports whether any tracked field differs.
func (p ProviderDiff) Changed() bool {
	return p.NameChanged || p.APIKeyChanged || p.ModelChanged || p.BaseURLChanged || p.FallbacksChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	kinds := []struct {
		kind     string
		old, new ProviderEntry
	}{
		{"llm", old.Providers.LLM, new.Providers.LLM},
		{"tts", old.Providers.TTS, new.Providers.TTS},
		{"ttm", old.Providers.TTM, new.Providers.TTM},
		{"audio", old.Providers.Audio, new.Providers.Audio},
	}
	for _, k := range kinds {
		pd := diffProvider(k.kind, k.old, k.new)
		if pd.Changed() {
			d.ProviderChanges = append(d.ProviderChanges, pd)
			d.ProvidersChanged = true
		}
	}

	return d
}

// diffProvider compares two provider entries of the same kind.
func diffProvider(kind string, old, new ProviderEntry) ProviderDiff {
	pd := ProviderDiff{Kind: kind}
	if old.Name != new.Name {
		pd.NameChanged = true
	}
	if old.APIKey != new.APIKey {
		pd.APIKeyChanged = true
	}
	if old.Model != new.Model {
		pd.ModelChanged = true
	}
	if old.BaseURL != new.BaseURL {
		pd.BaseURLChanged = true
	}
	pd.FallbacksChanged = len(old.Fallbacks) != len(new.Fallbacks)
	for i := range old.Fallbacks {
		if pd.FallbacksChanged {
			break
		}
		o, n := old.Fallbacks[i], new.Fallbacks[i]
		if o.Name != n.Name || o.APIKey != n.APIKey || o.Model != n.Model || o.BaseURL != n.BaseURL {
			pd.FallbacksChanged = true
		}
	}
	return pd
}
