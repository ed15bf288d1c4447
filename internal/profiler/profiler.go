// Package profiler starts continuous profiling when the environment asks
// for it.
package profiler

import (
	"os"

	"cloud.google.com/go/profiler"
	sglog "github.com/sourcegraph/log"
)

// Init starts the Google Cloud profiler IFF GOOGLE_CLOUD_PROFILER_ENABLED
// is set.
func Init(logger sglog.Logger, svcName, version string) {
	if os.Getenv("GOOGLE_CLOUD_PROFILER_ENABLED") == "" {
		return
	}
	err := profiler.Start(profiler.Config{
		Service:        svcName,
		ServiceVersion: version,
		MutexProfiling: true,
		AllocForceGC:   true,
	})
	if err != nil {
		logger.Warn("could not initialize profiler", sglog.Error(err))
	}
}
