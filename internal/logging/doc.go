// Package logging provides structured, JSON-formatted logging with
// size-based file rotation for memvault.
//
// By default logs go to stderr only; with --debug set, comprehensive
// logs are additionally written to ~/.memvault/logs/memvault.log.
package logging
