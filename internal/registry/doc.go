// Package registry maps `_target_` names found in configuration trees to Go
// descriptions of what those targets accept.
//
// A Target declares a params struct whose `cty` tags name the keys a subtree
// may carry. Sibling keys of `_target_` are converted through go-cty into that
// struct, so unknown keys, missing required keys and type mismatches are
// reported before anything is handed to the trainer. Targets with a Construct
// function are built in-process (launcher callbacks); the rest describe
// objects the external trainer builds and are only validated here.
//
// Modules populate the registry at startup by implementing Module.
package registry
