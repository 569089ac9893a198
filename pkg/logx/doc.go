// Package logx configures karmabot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one event per line (the activity log)
//   - Optional chat sink for warnings/errors (min-level + rate limiting)
//
// The file sink can be read back with Tail and streamed with Follow.
package logx
