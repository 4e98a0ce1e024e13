// version.go: mod loader version information
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// Version is shared by the patcher and the in-game runtime library.
const Version = "0.2.0"

// HookSiteVersion identifies the host layout the hook site table targets.
const HookSiteVersion = "aceo-alpha-26"
