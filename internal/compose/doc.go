// Package compose builds a single configuration tree from a primary config
// document and the fragments named in its `defaults` list.
//
// Fragments live in group directories under one or more search directories
// (`paths/default.yaml`, `logger/tensorboard.yaml`). A fragment merges at its
// package, which defaults to its group path and may be changed with a
// `# @package` header. Merge precedence follows the order of the defaults
// list, with `_self_` marking where the document's own body is merged.
package compose
