// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mindroom-ai/mindroom/routing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

const masterYAML = `
homeserver:
  url: https://matrix.example.com
  domain: example.com
service:
  user_id: "@mindroom:example.com"
  access_token: secret
agents:
  calculator:
    rooms: ["#lobby:example.com"]
    streaming: true
  code:
    thread_mode: room
  security: {}
teams:
  devops:
    members: [code, security]
    mode: route
mode_overrides:
  "security, code": collaborate
authorization:
  global_allow: ["@admin:example.com"]
  rooms:
    "#lobby:example.com": ["@*:example.com"]
  agent_replies:
    security: ["@admin:example.com"]
  default_access: false
storage:
  root: /var/lib/mindroom
rate_limit:
  per_minute: 6
  burst: 2
generator:
  url: http://localhost:8090
  token: backend-secret
`

func loadMaster(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	path := writeFile(t, dir, "mindroom.yaml", masterYAML)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Root == "" {
		t.Error("default storage root is empty")
	}
	if cfg.RateLimit.PerMinute <= 0 || cfg.RateLimit.Burst <= 0 {
		t.Errorf("default rate limit %+v not positive", cfg.RateLimit)
	}
}

func TestLoadFile(t *testing.T) {
	cfg := loadMaster(t)

	if cfg.Homeserver.URL != "https://matrix.example.com" {
		t.Errorf("homeserver url = %q", cfg.Homeserver.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if got := cfg.AgentNames(); len(got) != 3 || got[0] != "calculator" || got[2] != "security" {
		t.Errorf("AgentNames = %v", got)
	}
	if !cfg.Agents["calculator"].Streaming {
		t.Error("calculator streaming flag lost")
	}
	if cfg.Agents["code"].ThreadScope() != routing.RoomScoped {
		t.Error("code should be room scoped")
	}
	if cfg.Agents["security"].ThreadScope() != routing.ThreadScoped {
		t.Error("thread scope should be the default")
	}

	// Storage paths expand against the configured root.
	if cfg.Storage.DedupDB != "/var/lib/mindroom/responses.db" {
		t.Errorf("dedup db = %q", cfg.Storage.DedupDB)
	}
	if cfg.Storage.SnapshotDir != "/var/lib/mindroom/snapshots" {
		t.Errorf("snapshot dir = %q", cfg.Storage.SnapshotDir)
	}

	if cfg.Generator.URL != "http://localhost:8090" || cfg.Generator.Token != "backend-secret" {
		t.Errorf("generator = %+v", cfg.Generator)
	}
}

func TestLoadRequiresExplicitPath(t *testing.T) {
	t.Setenv("MINDROOM_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without MINDROOM_CONFIG")
	}

	path := writeFile(t, t.TempDir(), "mindroom.yaml", masterYAML)
	t.Setenv("MINDROOM_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Homeserver.Domain != "example.com" {
		t.Errorf("domain = %q", cfg.Homeserver.Domain)
	}
}

func TestDefinitionFileMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.jsonc", `{
  // deployment-specific agents
  "agents": {
    "deploy": {"thread_mode": "thread", "streaming": true},
    "calculator": {"thread_mode": "room"}, // loses to the master file
  },
  "teams": {
    "oncall": {"members": ["deploy", "security"], "mode": "coordinate"},
  },
}`)
	master := masterYAML + "\ndefinition_files: [agents.jsonc]\n"
	path := writeFile(t, dir, "mindroom.yaml", master)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, ok := cfg.Agents["deploy"]; !ok {
		t.Fatal("definition-file agent not merged")
	}
	if cfg.Agents["calculator"].ThreadScope() != routing.ThreadScoped {
		t.Error("master file entry overridden by definition file")
	}
	if team, ok := cfg.Teams["oncall"]; !ok || len(team.Members) != 2 {
		t.Errorf("oncall team = %+v ok=%v", cfg.Teams["oncall"], ok)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing homeserver url",
			mutate:  func(c *Config) { c.Homeserver.URL = "" },
			wantErr: "homeserver.url",
		},
		{
			name:    "bad domain",
			mutate:  func(c *Config) { c.Homeserver.Domain = "not a domain" },
			wantErr: "homeserver.domain",
		},
		{
			name:    "no agents",
			mutate:  func(c *Config) { c.Agents = nil },
			wantErr: "at least one agent",
		},
		{
			name: "bad thread mode",
			mutate: func(c *Config) {
				agent := c.Agents["code"]
				agent.ThreadMode = "channel"
				c.Agents["code"] = agent
			},
			wantErr: "thread_mode",
		},
		{
			name: "team with unknown member",
			mutate: func(c *Config) {
				c.Teams["devops"] = TeamConfig{Members: []string{"code", "ghost"}}
			},
			wantErr: `unknown member "ghost"`,
		},
		{
			name: "single-member team",
			mutate: func(c *Config) {
				c.Teams["devops"] = TeamConfig{Members: []string{"code"}}
			},
			wantErr: "at least two members",
		},
		{
			name: "bad team mode",
			mutate: func(c *Config) {
				c.Teams["devops"] = TeamConfig{Members: []string{"code", "security"}, Mode: "vote"}
			},
			wantErr: `unknown mode "vote"`,
		},
		{
			name:    "bad override mode",
			mutate:  func(c *Config) { c.ModeOverrides["code,security"] = "vote" },
			wantErr: "mode_overrides",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimit.PerMinute = -1 },
			wantErr: "per_minute",
		},
		{
			name:    "missing generator url",
			mutate:  func(c *Config) { c.Generator.URL = "" },
			wantErr: "generator.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadMaster(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted a broken config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestTeamFormation(t *testing.T) {
	cfg := loadMaster(t)
	formation := cfg.TeamFormation()

	devops, ok := formation.Predefined["devops"]
	if !ok {
		t.Fatal("devops missing from formation config")
	}
	if devops.Mode != routing.ModeRoute {
		t.Errorf("devops mode = %v", devops.Mode)
	}

	// The override key is canonicalized regardless of written order.
	mode, ok := formation.ModeOverrides[routing.MemberSetKey([]string{"code", "security"})]
	if !ok || mode != routing.ModeCollaborate {
		t.Errorf("override = %v ok=%v", mode, ok)
	}
}

func TestPolicy(t *testing.T) {
	cfg := loadMaster(t)
	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if policy.ServiceAccount.String() != "@mindroom:example.com" {
		t.Errorf("service account = %q", policy.ServiceAccount)
	}
	if policy.DefaultAccess {
		t.Error("default access should be false")
	}
	if len(policy.RoomAccess["#lobby:example.com"]) != 1 {
		t.Errorf("room access = %v", policy.RoomAccess)
	}
}
