// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ident

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// LocalPrefix marks client-issued identifiers. Server-issued identifiers
// never carry this prefix, so the two are distinguishable by construction.
const LocalPrefix = "local_"

// counter makes identifiers distinct even if UUID generation ever
// collided within a session.
var counter uint64

// NextLocalID returns a new local identifier, unique for the lifetime of
// the running session. Ordering between identifiers is not meaningful.
func NextLocalID() string {
	n := atomic.AddUint64(&counter, 1)
	return LocalPrefix + uuid.NewString() + "_" + strconv.FormatUint(n, 10)
}

// IsLocal reports whether the given identifier was issued by this
// generator rather than by a server.
func IsLocal(id string) bool {
	return len(id) > len(LocalPrefix) && id[:len(LocalPrefix)] == LocalPrefix
}
