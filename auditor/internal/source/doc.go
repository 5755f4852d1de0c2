// Package source loads one branch-month batch of raw waste events.
//
// Three backends share the Source interface: Postgres reads the waste_logs
// table through pgx, XLSX reads an exported spreadsheet with excelize, and
// JSON reads an array of events from a file. Every backend returns events
// ordered by ID, with absent numeric and date fields left invalid.
package source
