// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// vdrive packages.
//
// The drive's own on-disk layout is a fixed little-endian format
// (lib/format). Everything else that vdrive serializes is CBOR: the
// portable archive stream (lib/archive) and the machine-readable
// drive statistics printed by "vdrive info --cbor". The encoder uses
// Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. Same logical
// data always produces identical bytes, so two archives of the same
// tree taken at the same instant are byte-identical.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations, such as an archive's record
// sequence:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// Types that are only ever CBOR carry `cbor` struct tags. Types that
// are also printed as JSON carry `json` tags only; fxamacker/cbor
// falls back to them when `cbor` tags are absent.
package codec
