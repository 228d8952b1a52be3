// Package core holds the domain model and contracts of the concierge
// pipeline: roles, envelopes, authorization records, the audit trail, and
// the store/handler/executor interfaces the other packages implement.
package core
