// Package timeouts defines shared timeout constants used across the insights
// pipeline. Centralizing these values prevents drift between components and
// makes the durations discoverable.
package timeouts

import "time"

// CrUXRequest caps a single Chrome UX Report API round trip.
const CrUXRequest = 10 * time.Second

// PageSpeedRequest caps a single PageSpeed Insights round trip. Lighthouse
// runs server-side on Google's end and routinely takes tens of seconds.
const PageSpeedRequest = 30 * time.Second

// ProviderRetryDelay is the fixed pause between provider call attempts.
const ProviderRetryDelay = time.Second

// RateLimiterWait bounds how long a call may block waiting for a token from
// the shared provider rate limiter before giving up.
const RateLimiterWait = 5 * time.Second

// Shutdown limits how long the process waits for telemetry flush during
// graceful shutdown.
const Shutdown = 5 * time.Second
