// Package testing switches binaries into test mode when blank-imported from
// a test package, so main packages and workers skip dialing Postgres or Redis.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("BILLING_TEST_MODE", "1")
		// never post to a real cash-flow webhook from tests
		_ = os.Setenv("CASHFLOW_WEBHOOK_URL", "")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
