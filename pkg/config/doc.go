// Package config loads service configuration from VAHAN_* environment
// variables with validated defaults. Every binary calls LoadConfig once
// at startup and passes the typed sections down; nothing reads the
// environment after that.
package config
