// Package cli implements the blockflow command-line interface.
//
// Most commands edit a flow document on disk (--file, default flow.json):
// the document is loaded into an engine, the command runs as a sequence of
// engine operations and the result is written back. A rejected operation
// leaves the file untouched.
//
// # Commands
//
//   - kinds: list the block catalog
//   - new, add, connect, delete, move: edit a flow
//   - spawn: create a connected block through the edge-drop menu
//   - validate, render: check or draw a flow
//   - serve: run the HTTP command API
//   - store: manage flows in the configured storage backend
//
// # Logging
//
// Loading, saving, rendering and validating a flow are timed and logged
// with the flow's size. Loads and saves only show with --verbose (-v).
//
// # Exit codes
//
// 0 on success, 2 for invalid arguments, 3 when the flow rejected an edit
// (see [ExitCode]), 130 when interrupted and 1 for anything else.
//
// # Configuration
//
// --config names a TOML file; without it blockflow.toml in the working
// directory is used when present. Extra block kinds declared there are
// available to every command.
package cli
