// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// mindroom runs one event loop per configured agent against a Matrix
// homeserver. Routing decisions, team formation, invitations, and
// response dedup all live in this process; response text comes from
// the external generation backend named in the config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mindroom-ai/mindroom/agent"
	"github.com/mindroom-ai/mindroom/dispatch"
	"github.com/mindroom-ai/mindroom/lib/authz"
	"github.com/mindroom-ai/mindroom/lib/config"
	"github.com/mindroom-ai/mindroom/lib/dedup"
	"github.com/mindroom-ai/mindroom/lib/generate"
	"github.com/mindroom-ai/mindroom/lib/identity"
	"github.com/mindroom-ai/mindroom/lib/invite"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/lib/secret"
	"github.com/mindroom-ai/mindroom/lib/sqlitepool"
	"github.com/mindroom-ai/mindroom/lib/version"
	"github.com/mindroom-ai/mindroom/messaging"
	"github.com/mindroom-ai/mindroom/routing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("mindroom", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to mindroom.yaml (default: $MINDROOM_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("mindroom")
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	domain, err := cfg.Domain()
	if err != nil {
		return err
	}

	registry, err := identity.NewRegistry(domain, cfg.AgentNames(), cfg.TeamNames())
	if err != nil {
		return fmt.Errorf("building identity registry: %w", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("building authorization policy: %w", err)
	}
	checker := authz.NewChecker(policy, registry)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DedupDB), 0o755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      cfg.Storage.DedupDB,
		PoolSize:  len(cfg.Agents) + 1,
		OnConnect: dedup.Schema,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("opening dedup database: %w", err)
	}
	defer pool.Close()
	tracker := dedup.New(pool, nil)

	cache, err := routing.NewHistoryCache(cfg.Storage.SnapshotDir, logger)
	if err != nil {
		return fmt.Errorf("opening history cache: %w", err)
	}

	invites := invite.NewTable(nil, logger)
	go invites.Run(ctx)

	limiter := dispatch.NewLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, nil)
	go limiter.Run(ctx)

	prompts := make(map[string]string, len(cfg.Agents))
	for name, agentCfg := range cfg.Agents {
		prompts[name] = agentCfg.Prompt
	}
	generator, err := generate.New(generate.Config{
		BaseURL: cfg.Generator.URL,
		Token:   cfg.Generator.Token,
		Prompts: prompts,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("building generation client: %w", err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("building homeserver client: %w", err)
	}
	defer client.CloseIdleConnections()

	sessions := make(map[string]*messaging.DirectSession, len(cfg.Agents))
	defer func() {
		for _, session := range sessions {
			session.Close()
		}
	}()
	for name, agentCfg := range cfg.Agents {
		session, err := openSession(ctx, client, "mindroom_"+name, agentCfg.Account, domain)
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
		sessions[name] = session
		logger.Info("agent session ready", "agent", name, "user_id", session.UserID())
	}

	teamSessions := make(map[string]messaging.Session)
	teamDirect := make(map[string]*messaging.DirectSession)
	defer func() {
		for _, session := range teamDirect {
			session.Close()
		}
	}()
	for name, teamCfg := range cfg.Teams {
		if teamCfg.Account == (config.AccountConfig{}) {
			continue
		}
		session, err := openSession(ctx, client, "mindroom_"+name, teamCfg.Account, domain)
		if err != nil {
			return fmt.Errorf("team %q: %w", name, err)
		}
		teamDirect[name] = session
		teamSessions[name] = session
		logger.Info("team session ready", "team", name, "user_id", session.UserID())
	}

	teams := cfg.TeamFormation()

	var wg sync.WaitGroup
	runnerErrs := make(chan error, len(cfg.Agents))
	for name, agentCfg := range cfg.Agents {
		session := sessions[name]

		rooms, roomKeys, err := resolveRooms(ctx, session, agentCfg.Rooms)
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}

		runner, err := agent.New(agent.Config{
			Name:     name,
			Session:  session,
			Registry: registry,
			Checker:  checker,
			Invites:  invites,
			Resolver: routing.NewResolver(session, cache, logger),
			Tracker:  tracker,
			Coordinator: dispatch.New(dispatch.Config{
				Agent:        name,
				Session:      session,
				Generator:    generator,
				Tracker:      tracker,
				Limiter:      limiter,
				TeamSessions: teamSessions,
				Logger:       logger,
			}),
			Teams:     teams,
			Scope:     agentCfg.ThreadScope(),
			Rooms:     rooms,
			RoomKeys:  roomKeys,
			Streaming: agentCfg.Streaming,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil {
				runnerErrs <- fmt.Errorf("agent %q: %w", name, err)
			}
		}()
	}

	logger.Info("mindroom running",
		"agents", cfg.AgentNames(),
		"teams", cfg.TeamNames(),
		"homeserver", cfg.Homeserver.URL,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-runnerErrs:
		// One runner failing hard takes the process down; the rest
		// stop through context cancellation.
		stop()
	}

	logger.Info("shutting down")
	wg.Wait()
	return runErr
}

// openSession authenticates one Matrix account. A configured access
// token wins over a password; the token path needs a user ID, either
// configured explicitly or derived from the default localpart.
func openSession(ctx context.Context, client *messaging.Client, localpart string, account config.AccountConfig, domain ref.ServerName) (*messaging.DirectSession, error) {
	if account.AccessToken != "" {
		userID := ref.MatrixUserID(localpart, domain)
		if account.UserID != "" {
			parsed, err := ref.ParseUserID(account.UserID)
			if err != nil {
				return nil, fmt.Errorf("account user_id: %w", err)
			}
			userID = parsed
		}
		return client.SessionFromToken(userID, account.AccessToken)
	}

	if account.Password == "" {
		return nil, fmt.Errorf("account needs an access_token or a password")
	}
	password, err := secret.NewFromBytes([]byte(account.Password))
	if err != nil {
		return nil, fmt.Errorf("protecting password: %w", err)
	}
	defer password.Close()

	username := localpart
	if account.UserID != "" {
		parsed, err := ref.ParseUserID(account.UserID)
		if err != nil {
			return nil, fmt.Errorf("account user_id: %w", err)
		}
		username = parsed.Localpart()
	}
	return client.Login(ctx, username, password)
}

// resolveRooms turns configured room entries (IDs or aliases) into
// room IDs plus the extra authorization lookup keys each room is
// known under.
func resolveRooms(ctx context.Context, session messaging.Session, entries []string) ([]ref.RoomID, map[ref.RoomID]authz.RoomKeys, error) {
	var rooms []ref.RoomID
	keys := make(map[ref.RoomID]authz.RoomKeys)

	for _, entry := range entries {
		if strings.HasPrefix(entry, "#") {
			alias, err := ref.ParseRoomAlias(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("room %q: %w", entry, err)
			}
			roomID, err := session.ResolveAlias(ctx, alias)
			if err != nil {
				return nil, nil, fmt.Errorf("resolving room %q: %w", entry, err)
			}
			rooms = append(rooms, roomID)
			keys[roomID] = authz.RoomKeys{ID: roomID, Key: entry, Alias: alias}
			continue
		}

		roomID, err := ref.ParseRoomID(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("room %q: %w", entry, err)
		}
		rooms = append(rooms, roomID)
		keys[roomID] = authz.RoomKeys{ID: roomID, Key: entry}
	}
	return rooms, keys, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", raw)
}
