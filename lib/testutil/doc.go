// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: channel operations
// with timeout safety valves and unique identifier generation.
//
// These helpers exist so individual tests never hand-roll
// select/time.After patterns (which are easy to get wrong and
// inconsistent to read) and never use timestamps as uniqueness
// sources (which collide under parallel execution).
package testutil
