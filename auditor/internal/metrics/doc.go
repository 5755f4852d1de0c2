// Package metrics keeps the auditor's classification counters and renders
// them in the Prometheus text exposition format for the /metrics endpoint.
//
// Families:
//
//	wasteaudit_batches_total                          counter
//	wasteaudit_events_total{status}                   counter
//	wasteaudit_root_causes_total{cause}               counter
//	wasteaudit_wastage_cost_total{status}             counter
//	wasteaudit_notifications_total{outcome}           counter
//	wasteaudit_persist_errors_total                   counter
//	wasteaudit_notify_queue_pending                   gauge
//	wasteaudit_last_batch_timestamp_seconds           gauge
package metrics
