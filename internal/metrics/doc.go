// Package metrics provides observability hooks for the kiosk runtime.
//
// Components receive a Recorder through their constructors. NoopRecorder is the
// default, so callers never nil-check:
//
//	coord := coordinator.New(store, cache, coordinator.WithRecorder(metrics.NoopRecorder{}))
//
// When metrics are enabled in config the runtime swaps in a PrometheusRecorder
// registered on a private registry and serves it through HTTPHandler.
package metrics
