// Package aggregates implements the write side of the telemetry store.
//
// Each aggregate composes the table-level repos from internal/data/repos
// under one transaction it owns, so a sensor upload lands atomically or not
// at all. Read paths go straight to the repos; writes that span tables come
// through here.
package aggregates
