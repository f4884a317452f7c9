// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across parley packages.
//
// String Utilities:
//   - TruncateString: UTF-8 safe truncation with ellipsis
//   - PadString: right-padding for column alignment
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
