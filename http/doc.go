// Package http provides a composable HTTP client with request/response interceptors,
// default headers, authentication, trace propagation and policy-driven retries.
//
// Retries
//   - Each call is captured once into a replayable snapshot. Every attempt rebuilds the
//     http.Request from it, so the body, headers and trace ID are identical across attempts.
//   - Retry policies are configured on the builder (WithRetryPolicy, WithRetries) and may be
//     extended per call through Request.Retry. Request.NoRetry disables them for one call.
//   - After a failed attempt the policies are asked in order; the first one that votes to
//     retry supplies the delay. WithMaxAttempts bounds the total number of attempts.
//   - Interceptor and rate limiter failures are permanent and never retried.
//
// Backoff
//   - retry.FixedIntervals waits a listed duration before each retry.
//   - retry.ComputedDelay derives the wait from the attempt number, typically with
//     retry.Exponential (full jitter, capped) wrapped in retry.RetryAfter.
//
// Completion
//   - CompletionFullBody reads the body inside the attempt, so read failures are retryable.
//   - CompletionHeadersOnly returns as soon as headers arrive and leaves Response.Stream
//     to the caller.
//
// Cancellation of the caller's context stops the loop, including during a wait, and is
// reported as a CancellationError carrying the number of attempts made.
package http
