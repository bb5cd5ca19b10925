// Package common holds process-wide constants and logging setup shared by the
// commands.
package common

// Version is set at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"
