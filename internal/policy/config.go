// Copyright 2026 The Bridle Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/peg/bridle/internal/adapt"
	"github.com/peg/bridle/internal/hostmatch"
)

// Config is the long-lived, operator-supplied policy configuration.
// It is read-only during a decision and may be hot-reloaded between
// calls.
type Config struct {
	// RequireApprovalForHighRisk gates every High-tier action behind
	// explicit approval.
	RequireApprovalForHighRisk bool `yaml:"require_approval_for_high_risk"`

	// AllowedHosts lists patterns navigation targets must match.
	// Empty means nothing is allowed.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// BlockedOrigins lists patterns that force a deny regardless of
	// risk tier. Evaluated before the allow-list.
	BlockedOrigins []string `yaml:"blocked_origins"`

	// SensitiveActionKeys is the keyword vocabulary whose presence in
	// arguments promotes any action to High tier.
	SensitiveActionKeys []string `yaml:"sensitive_action_keys"`

	// CredentialIsolation denies script evaluation on pages where
	// credential fields were observed.
	CredentialIsolation bool `yaml:"credential_isolation"`

	// MaxRetries is the number of additional execution attempts after
	// the first failure. 0 means no retry.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base linear backoff between attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// GateTimeout bounds how long a gated action waits for approval
	// before resolving to denied.
	GateTimeout time.Duration `yaml:"gate_timeout"`

	// ArtifactByteBudget caps the size of recorded binary artifacts;
	// larger screenshots are re-encoded down to fit. 0 disables
	// compression.
	ArtifactByteBudget int `yaml:"artifact_byte_budget"`

	// Adaptation is the current hint from the adaptation engine, if
	// one is wired. Never mutated mid-decision.
	Adaptation *adapt.Hint `yaml:"-"`

	compileOnce sync.Once
	compiled    hostmatch.Lists
}

// DefaultGateTimeout applies when GateTimeout is unset.
const DefaultGateTimeout = 5 * time.Minute

// EffectiveGateTimeout returns the configured gate timeout or the
// default.
func (c *Config) EffectiveGateTimeout() time.Duration {
	if c.GateTimeout > 0 {
		return c.GateTimeout
	}
	return DefaultGateTimeout
}

// lists returns the compiled host lists, compiling once on first use so
// hand-built test configs work without an explicit compile step.
func (c *Config) lists() hostmatch.Lists {
	c.compileOnce.Do(func() {
		c.compiled = hostmatch.NewLists(c.AllowedHosts, c.BlockedOrigins, slog.Default())
	})
	return c.compiled
}

func hostOf(raw string) string {
	return hostmatch.HostOf(raw)
}

// FileStore loads policy configuration from a YAML file on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a config store reading from path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path this store reads from.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and parses the config file.
func (s *FileStore) Load() (*Config, error) {
	absPath, err := filepath.Abs(s.path)
	if err != nil {
		return nil, fmt.Errorf("policy: resolve path %q: %w", s.path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("policy: read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("policy: parse config: %w", err)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("policy: max_retries must not be negative")
	}
	return &cfg, nil
}

// UnmarshalYAML decodes the config, accepting durations in the usual
// "250ms" / "5m" notation that yaml.v3 does not parse into
// time.Duration on its own.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RequireApprovalForHighRisk bool     `yaml:"require_approval_for_high_risk"`
		AllowedHosts               []string `yaml:"allowed_hosts"`
		BlockedOrigins             []string `yaml:"blocked_origins"`
		SensitiveActionKeys        []string `yaml:"sensitive_action_keys"`
		CredentialIsolation        bool     `yaml:"credential_isolation"`
		MaxRetries                 int      `yaml:"max_retries"`
		RetryBackoff               string   `yaml:"retry_backoff"`
		GateTimeout                string   `yaml:"gate_timeout"`
		ArtifactByteBudget         int      `yaml:"artifact_byte_budget"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.RequireApprovalForHighRisk = raw.RequireApprovalForHighRisk
	c.AllowedHosts = raw.AllowedHosts
	c.BlockedOrigins = raw.BlockedOrigins
	c.SensitiveActionKeys = raw.SensitiveActionKeys
	c.CredentialIsolation = raw.CredentialIsolation
	c.MaxRetries = raw.MaxRetries
	c.ArtifactByteBudget = raw.ArtifactByteBudget

	var err error
	if c.RetryBackoff, err = parseDuration(raw.RetryBackoff, "retry_backoff"); err != nil {
		return err
	}
	if c.GateTimeout, err = parseDuration(raw.GateTimeout, "gate_timeout"); err != nil {
		return err
	}
	return nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("policy: invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

// Source holds the active configuration and supports hot reload. Reads
// never block behind a reload in progress for longer than the swap.
type Source struct {
	mu     sync.RWMutex
	cfg    *Config
	store  *FileStore
	logger *slog.Logger
}

// NewSource loads the initial configuration from the store.
func NewSource(store *FileStore, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}

	logger.Info("policy: config loaded",
		"path", store.Path(),
		"allowed_hosts", len(cfg.AllowedHosts),
		"blocked_origins", len(cfg.BlockedOrigins),
		"require_approval_high_risk", cfg.RequireApprovalForHighRisk,
	)

	return &Source{cfg: cfg, store: store, logger: logger}, nil
}

// NewStaticSource wraps a fixed config, for embedders that own config
// loading themselves.
func NewStaticSource(cfg *Config) *Source {
	return &Source{cfg: cfg, logger: slog.Default()}
}

// Current returns the active configuration.
func (s *Source) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetAdaptation attaches a fresh adaptation hint to the active config.
// The swap is atomic; in-flight decisions keep the config they started
// with.
func (s *Source) SetAdaptation(hint adapt.Hint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.clone()
	next.Adaptation = &hint
	s.cfg = next
}

// Reload re-reads the config file and replaces the active configuration.
// An unreadable or invalid file leaves the old config active. A config
// that parses but is empty is rejected, since file watchers can fire on
// truncated files before new content lands.
func (s *Source) Reload() error {
	if s.store == nil {
		return fmt.Errorf("policy: reload on static source")
	}

	cfg, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("policy: reload failed: %w", err)
	}
	if len(cfg.AllowedHosts) == 0 && len(cfg.BlockedOrigins) == 0 && len(cfg.SensitiveActionKeys) == 0 {
		return fmt.Errorf("policy: reload rejected, empty config (file may be mid-write)")
	}

	s.mu.Lock()
	if s.cfg != nil && s.cfg.Adaptation != nil {
		cfg.Adaptation = s.cfg.Adaptation
	}
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("policy: config reloaded",
		"allowed_hosts", len(cfg.AllowedHosts),
		"blocked_origins", len(cfg.BlockedOrigins),
	)
	return nil
}

// clone copies the config for a hint swap, resetting the compiled
// pattern cache.
func (c *Config) clone() *Config {
	return &Config{
		RequireApprovalForHighRisk: c.RequireApprovalForHighRisk,
		AllowedHosts:               c.AllowedHosts,
		BlockedOrigins:             c.BlockedOrigins,
		SensitiveActionKeys:        c.SensitiveActionKeys,
		CredentialIsolation:        c.CredentialIsolation,
		MaxRetries:                 c.MaxRetries,
		RetryBackoff:               c.RetryBackoff,
		GateTimeout:                c.GateTimeout,
		ArtifactByteBudget:         c.ArtifactByteBudget,
		Adaptation:                 c.Adaptation,
	}
}
