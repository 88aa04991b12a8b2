// Package cli provides the interactive authkeeper command-line client.
//
// It wires configuration, the HTTP API client and a REPL. Passwords are
// read without echo and never leave the machine in clear: they are
// stretched with PBKDF2 salted by the account UUID first.
//
// Commands: signup, login, refresh, whoami, logout, help, exit.
//
// The refresh token is kept in the configured session file, so a later run
// resumes the session with a single refresh call.
package cli
