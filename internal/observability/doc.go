// Package observability builds the process logger and owns the Prometheus
// collectors for the security log service.
//
// Metrics are registered against the default registry at package init and are
// exposed by the side-channel metrics server started by cmd/server:
//
//	GET http://<host>:<METRICS_PORT>/metrics
//
// HTTP metrics are labelled by chi route pattern, never the raw URL, so that
// label cardinality stays bounded.
package observability
