// Package rules turns one waste event plus its branch baseline into
// diagnostics and a terminal status.
//
// evaluate.go holds Evaluate (waste rate and every flag), Compose (root
// causes in fixed precedence order) and Apply, which chains the whole
// per-event pass. classify.go holds the four-step status decision.
// summary.go renders the deterministic fact digest attached to every event
// that is not NoIssue.
//
// Nothing here blocks, logs or reads another event; all functions are safe
// to call from many goroutines with a shared *baseline.Baseline.
package rules
