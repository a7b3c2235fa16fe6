package config

import "time"

const (
	DefaultMaxRetries        = 3
	DefaultBackoffBase       = 1 * time.Second
	DefaultBackoffCap        = 5 * time.Minute
	DefaultInterItemDelay    = 50 * time.Millisecond
	DefaultRequestTimeout    = 10 * time.Second
	DefaultBatchSize         = 50
	DefaultFailedHighWater   = 10
	DefaultPendingStaleAfter = 1 * time.Hour
	DefaultClaimTTL          = 5 * time.Minute
	DefaultSyncInterval      = 1 * time.Minute
	DefaultCleanupAfter      = 7 * 24 * time.Hour
	DefaultProbeInterval     = 30 * time.Second
	DefaultProbeTimeout      = 5 * time.Second

	DefaultCacheVersion = "v1"
	DefaultAPITimeout   = 5 * time.Second
	DefaultNavTimeout   = 3 * time.Second
)

const DefaultOfflinePage = `<!DOCTYPE html>
<html>
<head><title>Offline</title></head>
<body><h1>You are offline</h1><p>Queued changes will sync when the connection returns.</p></body>
</html>`

// DefaultEndpoints maps the production-tracking tables to their API paths.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		"panels":               "panels",
		"inspections":          "inspections",
		"manufacturing-orders": "manufacturing-orders",
		"stations":             "stations",
	}
}
