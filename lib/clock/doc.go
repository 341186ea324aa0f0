// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source with real and fake
// implementations.
//
// The fake clock makes every timed behavior in mindroom — invitation
// expiry, streaming edit debounce, reply rate limiting — testable in
// virtual time: tests call Advance instead of sleeping, and timers
// fire deterministically in deadline order.
package clock
