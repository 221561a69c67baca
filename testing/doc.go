// Package testing provides test doubles for code built on the retrying HTTP client.
//
// # Mocks
//
// The mocks subpackage provides testify-based implementations of the transport seams:
//   - MockRoundTripper for http.RoundTripper, plugged in with Builder.WithTransport
//   - MockDoer for retry.Doer, driven directly by a retry.Coordinator
//
// # Fixtures
//
// The fixtures subpackage builds pre-configured mocks for common scenarios:
//   - flaky upstreams that fail a fixed number of times before succeeding
//   - upstreams that always fail with a status or a transport error
//   - canned JSON and text responses
//
// # Usage
//
//	transport := fixtures.NewFlakyTransport(2, http.StatusServiceUnavailable)
//	client := retryhttp.NewBuilder(log).WithTransport(transport).Build()
//	...
//	transport.AssertExpectations(t)
package testing
