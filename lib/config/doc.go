// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the mindroom
// service.
//
// Configuration is loaded from a single file specified by either the
// MINDROOM_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Agent and team definitions may also live in separate JSONC files
// (JSON extended with comments and trailing commas) referenced from
// the master file; they merge into the master config before
// validation, with the master file winning on conflicts.
//
// Variable expansion is performed on storage paths after loading:
// ${HOME}, ${MINDROOM_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
package config
