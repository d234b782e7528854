// Package aggregates declares the write-boundary contracts of the domain:
// which operations must land atomically, what they take, and the error codes
// they surface. Implementations live under internal/data/aggregates; nothing
// here knows about gorm or HTTP.
package aggregates
