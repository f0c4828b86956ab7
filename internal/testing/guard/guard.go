// Package guard forces test mode for suites that would otherwise touch the
// runtime startup path. Import it for its side effect.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MILLTRACK_TEST_MODE") == "" {
			_ = os.Setenv("MILLTRACK_TEST_MODE", "1")
		}
	})
}
