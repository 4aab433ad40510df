// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// Shutdown limits how long a service waits for telemetry and server
// teardown during graceful shutdown.
const Shutdown = 5 * time.Second

// SweepPass is the default interval between background sweep passes over
// due deletion requests and the inactivity ladder.
const SweepPass = 30 * time.Second

// NotifyDispatch is the default interval between notification outbox
// dispatch passes.
const NotifyDispatch = 10 * time.Second
