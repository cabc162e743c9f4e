// Package commands defines the sodular CLI.
//
// Commands
//
//   - login, register, logout, whoami   Manage the stored session
//   - db, tables, ref                   Databases, tables and documents
//   - storage, buckets, files           File storage
//   - watch                             Stream table events as JSON lines
//
// # Implementation
//
// The root command loads configuration from the environment, builds the
// token store and SDK client once in PersistentPreRunE, and hands them to
// subcommands through an app value. Results are printed as indented JSON on
// stdout; logs and errors go to stderr.
package commands
