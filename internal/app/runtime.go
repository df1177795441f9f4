package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// BILLING_TEST_MODE makes cmd/billing and cmd/worker return before dialing
// Postgres or Redis, and keeps cash-flow entries from leaving the process.
const testModeEnv = "BILLING_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func readTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether the billing binaries run under go test.
func InTestMode() bool {
	testModeOnce.Do(readTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads BILLING_TEST_MODE after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	readTestMode()
}

// CashFlowEndpoint is the webhook settled installments are posted to. It is
// empty, and delivery disabled, when unset or in test mode.
func (c *Config) CashFlowEndpoint() string {
	if c == nil || InTestMode() {
		return ""
	}
	return c.CashFlowWebhookURL
}
