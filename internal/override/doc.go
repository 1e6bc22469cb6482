// Package override parses command-line override tokens such as
// `data.batch_size=64`, `+trainer.precision=16`, `~callbacks.early_stopping`
// or `data=xournal` and applies them to a composed configuration tree.
//
// Values are read with HCL literal syntax: numbers, booleans, null, quoted
// strings, `[...]` lists and `{k = v}` or `{k: v}` maps. Anything else that
// is not a bracketed or quoted literal is kept as a plain string, so paths and
// `${...}` interpolations pass through untouched.
package override
