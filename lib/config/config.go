// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mindroom-ai/mindroom/lib/authz"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/routing"
)

// Config is the master configuration for a mindroom deployment.
type Config struct {
	// Homeserver is the Matrix endpoint the service connects to.
	Homeserver HomeserverConfig `yaml:"homeserver" json:"homeserver"`

	// Service is the deployment's own service account, used for
	// room management and always authorized as a sender.
	Service AccountConfig `yaml:"service" json:"service"`

	// Agents maps agent short names to their per-agent settings.
	// The Matrix localpart of each agent is mindroom_<name>.
	Agents map[string]AgentConfig `yaml:"agents" json:"agents"`

	// Teams maps predefined team names to their definitions.
	Teams map[string]TeamConfig `yaml:"teams" json:"teams"`

	// ModeOverrides maps an ad hoc member set (comma-separated
	// agent names, any order) to the collaboration mode used when
	// exactly that set forms a team.
	ModeOverrides map[string]string `yaml:"mode_overrides" json:"mode_overrides"`

	// Authorization is the sender access policy.
	Authorization AuthorizationConfig `yaml:"authorization" json:"authorization"`

	// Storage configures local state locations.
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// RateLimit bounds replies per (agent, requester, room).
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Generator is the external generation backend.
	Generator GeneratorConfig `yaml:"generator" json:"generator"`

	// DefinitionFiles lists JSONC files whose agent and team
	// definitions merge into this config. Relative paths resolve
	// against the master file's directory.
	DefinitionFiles []string `yaml:"definition_files" json:"-"`
}

// HomeserverConfig identifies the Matrix homeserver.
type HomeserverConfig struct {
	// URL is the client-server API base, e.g. https://matrix.example.com.
	URL string `yaml:"url" json:"url"`

	// Domain is the server name that appears in local user IDs.
	Domain string `yaml:"domain" json:"domain"`
}

// AccountConfig holds login material for one Matrix account. Exactly
// one of AccessToken and Password must be set.
type AccountConfig struct {
	UserID      string `yaml:"user_id" json:"user_id"`
	AccessToken string `yaml:"access_token" json:"access_token"`
	Password    string `yaml:"password" json:"password"`
}

// AgentConfig is the per-agent configuration.
type AgentConfig struct {
	// Account is the agent's own Matrix login. When empty, the
	// agent logs in as mindroom_<name> with Password.
	Account AccountConfig `yaml:"account" json:"account"`

	// Rooms lists the rooms (IDs or aliases) the agent serves.
	// An agent with no rooms is configured everywhere it is joined.
	Rooms []string `yaml:"rooms" json:"rooms"`

	// ThreadMode is "thread" (default) or "room". Room-mode agents
	// treat every message as room-scoped conversation.
	ThreadMode string `yaml:"thread_mode" json:"thread_mode"`

	// Streaming enables incremental debounced-edit responses.
	Streaming bool `yaml:"streaming" json:"streaming"`

	// Prompt is the agent's system prompt passed to generation.
	Prompt string `yaml:"prompt" json:"prompt"`
}

// TeamConfig defines one predefined team.
type TeamConfig struct {
	// Members are agent short names; order is irrelevant.
	Members []string `yaml:"members" json:"members"`

	// Mode is coordinate, collaborate, or route. Empty means
	// coordinate.
	Mode string `yaml:"mode" json:"mode"`

	// Account, when set, gives the team its own Matrix session so
	// team responses are sent by the team identity.
	Account AccountConfig `yaml:"account" json:"account"`
}

// AuthorizationConfig is the sender access policy. All lists hold
// glob patterns matched against full Matrix user IDs.
type AuthorizationConfig struct {
	// Aliases resolves bridged sender IDs to canonical user IDs
	// before any list matching.
	Aliases map[string]string `yaml:"aliases" json:"aliases"`

	// GlobalAllow lists senders authorized in every room.
	GlobalAllow []string `yaml:"global_allow" json:"global_allow"`

	// Rooms maps a room lookup key (room ID, configured key,
	// alias, or alias localpart) to the senders allowed there.
	Rooms map[string][]string `yaml:"rooms" json:"rooms"`

	// AgentReplies restricts which senders a given agent replies
	// to. The key "*" applies to agents without a specific entry;
	// the value "*" allows everyone.
	AgentReplies map[string][]string `yaml:"agent_replies" json:"agent_replies"`

	// DefaultAccess decides rooms with no matching Rooms key.
	DefaultAccess bool `yaml:"default_access" json:"default_access"`
}

// StorageConfig configures local state locations.
type StorageConfig struct {
	// Root is the base directory for mindroom state.
	Root string `yaml:"root" json:"root"`

	// DedupDB is the SQLite file recording which inbound events
	// each agent has answered.
	DedupDB string `yaml:"dedup_db" json:"dedup_db"`

	// SnapshotDir holds cached thread-history snapshots.
	SnapshotDir string `yaml:"snapshot_dir" json:"snapshot_dir"`
}

// RateLimitConfig bounds how often an agent replies to one requester
// in one room.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute" json:"per_minute"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// GeneratorConfig points at the external generation backend that
// produces agent responses.
type GeneratorConfig struct {
	// URL is the backend base URL, e.g. http://localhost:8090.
	URL string `yaml:"url" json:"url"`

	// Token, when set, is sent as a bearer token.
	Token string `yaml:"token" json:"token"`
}

// Default returns the default configuration. The defaults give every
// field a sensible zero value; the config file is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "mindroom")

	return &Config{
		Agents: map[string]AgentConfig{},
		Teams:  map[string]TeamConfig{},
		Storage: StorageConfig{
			Root:        defaultRoot,
			DedupDB:     "${MINDROOM_ROOT}/responses.db",
			SnapshotDir: "${MINDROOM_ROOT}/snapshots",
		},
		RateLimit: RateLimitConfig{
			PerMinute: 20,
			Burst:     5,
		},
	}
}

// Load loads configuration from the MINDROOM_CONFIG environment
// variable. There are no fallbacks: if the variable is not set, Load
// fails.
func Load() (*Config, error) {
	path := os.Getenv("MINDROOM_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("MINDROOM_CONFIG environment variable not set; " +
			"set it to the path of your mindroom.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.mergeDefinitionFiles(filepath.Dir(path)); err != nil {
		return nil, err
	}
	cfg.expandVariables()

	return cfg, nil
}

// definitionFile is the JSONC sidecar format: only agent and team
// definitions, no service-level settings.
type definitionFile struct {
	Agents map[string]AgentConfig `json:"agents"`
	Teams  map[string]TeamConfig  `json:"teams"`
}

// mergeDefinitionFiles reads each referenced JSONC file and merges
// its definitions. Entries already present in the master config win.
func (c *Config) mergeDefinitionFiles(baseDir string) error {
	for _, file := range c.DefinitionFiles {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading definitions: %w", err)
		}

		var defs definitionFile
		if err := json.Unmarshal(jsonc.ToJSON(data), &defs); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		for name, agent := range defs.Agents {
			if _, exists := c.Agents[name]; exists {
				continue
			}
			c.Agents[name] = agent
		}
		for name, team := range defs.Teams {
			if _, exists := c.Teams[name]; exists {
				continue
			}
			c.Teams[name] = team
		}
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// storage paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"MINDROOM_ROOT": c.Storage.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Storage.Root = expandVars(c.Storage.Root, vars)
	vars["MINDROOM_ROOT"] = c.Storage.Root

	c.Storage.DedupDB = expandVars(c.Storage.DedupDB, vars)
	c.Storage.SnapshotDir = expandVars(c.Storage.SnapshotDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}
	if c.Homeserver.Domain == "" {
		errs = append(errs, fmt.Errorf("homeserver.domain is required"))
	} else if _, err := ref.ParseServerName(c.Homeserver.Domain); err != nil {
		errs = append(errs, fmt.Errorf("homeserver.domain: %w", err))
	}

	if c.Service.UserID != "" {
		if _, err := ref.ParseUserID(c.Service.UserID); err != nil {
			errs = append(errs, fmt.Errorf("service.user_id: %w", err))
		}
	}

	if len(c.Agents) == 0 {
		errs = append(errs, fmt.Errorf("at least one agent is required"))
	}
	for name, agent := range c.Agents {
		if err := ref.ValidateLocalpart("mindroom_" + name); err != nil {
			errs = append(errs, fmt.Errorf("agent %q: %w", name, err))
		}
		switch agent.ThreadMode {
		case "", "thread", "room":
		default:
			errs = append(errs, fmt.Errorf(
				"agent %q: thread_mode must be thread or room, got %q", name, agent.ThreadMode))
		}
	}

	for name, team := range c.Teams {
		if err := ref.ValidateLocalpart("mindroom_" + name); err != nil {
			errs = append(errs, fmt.Errorf("team %q: %w", name, err))
		}
		if len(team.Members) < 2 {
			errs = append(errs, fmt.Errorf("team %q: needs at least two members", name))
		}
		for _, member := range team.Members {
			if _, ok := c.Agents[member]; !ok {
				errs = append(errs, fmt.Errorf("team %q: unknown member %q", name, member))
			}
		}
		if _, ok := routing.ParseTeamMode(team.Mode); !ok {
			errs = append(errs, fmt.Errorf("team %q: unknown mode %q", name, team.Mode))
		}
	}

	for members, mode := range c.ModeOverrides {
		if _, ok := routing.ParseTeamMode(mode); !ok {
			errs = append(errs, fmt.Errorf("mode_overrides[%q]: unknown mode %q", members, mode))
		}
	}

	if c.Generator.URL == "" {
		errs = append(errs, fmt.Errorf("generator.url is required"))
	}

	if c.RateLimit.PerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.per_minute must not be negative"))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.burst must not be negative"))
	}

	return errors.Join(errs...)
}

// AgentNames returns the configured agent names, sorted.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TeamNames returns the configured team names, sorted.
func (c *Config) TeamNames() []string {
	names := make([]string, 0, len(c.Teams))
	for name := range c.Teams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Domain returns the homeserver domain as a server name. Call
// Validate first; Domain fails on an unparseable domain.
func (c *Config) Domain() (ref.ServerName, error) {
	return ref.ParseServerName(c.Homeserver.Domain)
}

// ThreadScope returns the routing scope the agent operates in.
func (a AgentConfig) ThreadScope() routing.ThreadMode {
	if a.ThreadMode == "room" {
		return routing.RoomScoped
	}
	return routing.ThreadScoped
}

// TeamFormation converts the configured teams and overrides into the
// form the formation engine consumes. Modes must already be
// validated.
func (c *Config) TeamFormation() routing.TeamConfig {
	formation := routing.TeamConfig{
		Predefined:    make(map[string]routing.TeamDef, len(c.Teams)),
		ModeOverrides: make(map[string]routing.TeamMode, len(c.ModeOverrides)),
	}
	for name, team := range c.Teams {
		mode, _ := routing.ParseTeamMode(team.Mode)
		formation.Predefined[name] = routing.TeamDef{
			Name:    name,
			Members: team.Members,
			Mode:    mode,
		}
	}
	for members, raw := range c.ModeOverrides {
		mode, _ := routing.ParseTeamMode(raw)
		formation.ModeOverrides[normalizeMemberSet(members)] = mode
	}
	return formation
}

// normalizeMemberSet canonicalizes a comma-separated member list so
// overrides match regardless of the order the operator wrote.
func normalizeMemberSet(raw string) string {
	var members []string
	for _, part := range strings.Split(raw, ",") {
		if member := strings.TrimSpace(part); member != "" {
			members = append(members, member)
		}
	}
	return routing.MemberSetKey(members)
}

// Policy converts the authorization section into the checker's
// policy. The service account, when configured, is carried through.
func (c *Config) Policy() (authz.Policy, error) {
	policy := authz.Policy{
		AliasMap:        c.Authorization.Aliases,
		GlobalAllow:     c.Authorization.GlobalAllow,
		RoomAccess:      c.Authorization.Rooms,
		AgentReplyAllow: c.Authorization.AgentReplies,
		DefaultAccess:   c.Authorization.DefaultAccess,
	}
	if c.Service.UserID != "" {
		account, err := ref.ParseUserID(c.Service.UserID)
		if err != nil {
			return authz.Policy{}, fmt.Errorf("service.user_id: %w", err)
		}
		policy.ServiceAccount = account
	}
	return policy, nil
}
