// Package app contains the core application logic. It wires the config
// repository, the target registry and the launcher together and runs one
// invocation, decoupled from any specific entrypoint like a CLI.
package app
