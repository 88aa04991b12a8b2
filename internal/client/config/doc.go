// Package config loads runtime configuration for the authkeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment: AUTHKEEPER_SERVER, AUTHKEEPER_TIMEOUT, AUTHKEEPER_SESSION_FILE.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the authkeeper HTTP API
//	-t int      request timeout (seconds)
//	-f string   session file path ("" disables persistence)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for the timeout, so it can be either
// a string like "10s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "request_timeout": "10s",
//	  "session_file": "/home/me/.config/authkeeper/session.json"
//	}
package config
