// Package guard switches the process into test mode when imported, so that
// binaries and app helpers skip runtime side effects.
package guard

import (
	"os"
	"sync"
)

// Env is the variable consulted by app.InTestMode.
const Env = "STOCKBOOK_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
