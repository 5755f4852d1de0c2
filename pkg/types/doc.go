// Package types defines the canonical in-memory representation of a food-waste
// event as it moves through the auditor: the raw fields coerced at ingestion,
// plus the derived waste rate, diagnostic flags, root causes, status and
// feedback attached by the classification pipeline.
//
// Optional inputs use NullFloat and NullTime so that absence is explicit and
// decided once at ingestion; rule code reads Valid instead of probing maps.
package types
