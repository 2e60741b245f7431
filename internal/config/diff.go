package config

import "reflect"

// ConfigDiff describes what changed between two configs. Changes that can be
// applied to a running server are broken out into dedicated fields; every
// other change is listed in RestartRequired by its config path.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentChanged reports a change to max_iterations, temperature, or
	// system_prompt. The agent is rebuilt from NewAgent without a restart.
	AgentChanged bool
	NewAgent     AgentConfig

	// RestartRequired lists config sections that changed but only take
	// effect after a restart (providers, storage, ingest, server, mcp).
	RestartRequired []string
}

// Empty reports whether the diff contains no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AgentChanged && len(d.RestartRequired) == 0
}

// Diff reports which reload-relevant settings differ between two configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Agent != new.Agent {
		d.AgentChanged = true
		d.NewAgent = new.Agent
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !providerEqual(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if !providerEqual(old.Providers.Embeddings, new.Providers.Embeddings) {
		d.RestartRequired = append(d.RestartRequired, "providers.embeddings")
	}
	if !providerEqual(old.Providers.Image, new.Providers.Image) {
		d.RestartRequired = append(d.RestartRequired, "providers.image")
	}
	if old.Index != new.Index {
		d.RestartRequired = append(d.RestartRequired, "index")
	}
	if old.Docstore != new.Docstore {
		d.RestartRequired = append(d.RestartRequired, "docstore")
	}
	if old.Ingest != new.Ingest {
		d.RestartRequired = append(d.RestartRequired, "ingest")
	}
	if !reflect.DeepEqual(old.MCP, new.MCP) {
		d.RestartRequired = append(d.RestartRequired, "mcp.servers")
	}

	return d
}

// tlsEqual compares two optional TLS blocks by value.
func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// providerEqual compares two provider entries including their free-form
// Options maps. Options values may themselves be maps or slices, so the
// comparison has to be deep.
func providerEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
