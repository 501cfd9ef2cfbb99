// Package holo provides the conductor-facing data types for holoclient.
//
// This package contains type definitions and their wire shapes only. All
// other internal packages import holo; holo imports nothing internal. This
// keeps the domain types the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Struct field order matches the conductor's serialization order. The
//     MessagePack encoder writes fields in declaration order and zome call
//     signatures are computed over those bytes, so reordering fields breaks
//     signature verification.
//   - All msgpack tags use snake_case.
//   - Hashes travel as raw 39-byte binaries; the "u"-prefixed base64 form
//     is for humans and config files only.
package holo

// Version is the holoclient release.
const Version = "0.4.0"
