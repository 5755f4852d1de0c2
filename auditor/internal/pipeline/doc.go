// Package pipeline classifies one branch batch end to end.
//
// ClassifyBatch builds the branch baseline once, then evaluates, classifies
// and routes every event on a bounded worker pool. The baseline is complete
// before the first worker starts and is only read afterwards. Results keep
// input order. The batch is then handed to the persistence sink, and a
// Report summarises the run.
package pipeline
