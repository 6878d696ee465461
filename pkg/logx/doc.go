// Package logx configures remindbot's structured logging.
//
// It wraps zerolog in a small Logger value so that:
//   - console output stays readable (short timestamp and caller)
//   - file output is JSON lines
//   - warnings can be mirrored to a Telegram chat (min level + rate limit)
package logx
