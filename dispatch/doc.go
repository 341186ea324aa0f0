// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch turns finalized routing decisions into exactly one
// outbound action: a single-agent response, a combined team response,
// or an in-place edit of an earlier response. The dedup tracker is
// consulted as the last gate before every send and marked only after
// a send succeeds, so a failed send stays retryable and concurrent
// observers of the same event never double-post.
package dispatch
