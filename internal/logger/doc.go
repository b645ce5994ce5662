// Package logger wraps zap with a global sugared logger, level parsing and
// context helpers. Code that has a context logs through it, so names and
// key-value pairs attached upstream (request id, machine id) follow the call.
package logger
