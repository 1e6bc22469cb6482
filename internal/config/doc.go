// Package config defines the format-agnostic configuration tree used across
// the launcher: the ordered Node mapping, merge rules, the YAML and TOML
// codecs, the read-only Resolved wrapper handed to the trainer, and the error
// kinds surfaced during resolution.
//
// A Node value is one of: nil, string, int64, float64, bool, []any or *Node.
// Decoders and setters normalize other Go scalar types into this set, so the
// rest of the system only ever switches over these cases.
package config
