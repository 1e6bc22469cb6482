// internal/keypath/doc.go

/*
Package keypath provides a structured representation of dotted configuration
key paths, e.g. `data.batch_size` or `trainer.devices[0]`.

A path is a dot-separated sequence of segments. Each segment names a mapping
key and may carry a single list index. The package centralizes all parsing and
formatting so overrides, interpolation references and error messages agree on
one canonical form.
*/
package keypath
