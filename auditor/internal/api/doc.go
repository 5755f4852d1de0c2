// Package api implements the HTTP REST API for the auditor.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /api/v1/health               liveness plus counts of held results
//	GET  /api/v1/analyze              classify one branch-month (?branch=&year=&month=)
//	GET  /api/v1/snapshot             health plus every held result
//	GET  /api/v1/results              held results, optionally ?branch=
//	GET  /api/v1/results/{id}         single result; 404 if unknown
//	POST /api/v1/feedback/send        resend stored chef feedback by email
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. JSON types are defined in types.go. No external
// HTTP framework is used.
package api
