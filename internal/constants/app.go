package constants

import (
	"time"
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient API errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (500ms)
	RetryInitialDelay = 500 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// Disk space safety margin
const (
	// DiskSpaceBufferPercent - additional space to require beyond file size (15%)
	DiskSpaceBufferPercent = 0.15
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Listing cache
const (
	// ListingCacheTTL - how long a listing is served from memory before re-fetching (30 seconds)
	// Mutations invalidate affected parents immediately regardless of TTL
	ListingCacheTTL = 30 * time.Second

	// NotificationTTL - how long a transient notification stays visible (5 seconds)
	NotificationTTL = 5 * time.Second
)

// CLI Concurrency Limits
const (
	// DefaultMaxConcurrent - default concurrent downloads
	DefaultMaxConcurrent = 4

	// MinMaxConcurrent - minimum concurrent operations (sequential mode)
	MinMaxConcurrent = 1

	// MaxMaxConcurrent - maximum concurrent operations allowed
	MaxMaxConcurrent = 10
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for API operations (30 seconds)
	APIContextTimeout = 30 * time.Second

	// APIConnectionTestTimeout - timeout for testing API connectivity (10 seconds)
	APIConnectionTestTimeout = 10 * time.Second

	// DownloadTimeout - timeout for a single file download (30 minutes)
	DownloadTimeout = 30 * time.Minute

	// TokenExpiryLeeway - tokens expiring within this window are treated as expired (30 seconds)
	TokenExpiryLeeway = 30 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPResponseHeaderTimeout - time to wait for response headers (60 seconds)
	HTTPResponseHeaderTimeout = 60 * time.Second
)

// Rate Limiter
const (
	// ReadRatePerSecond - sustained rate for listing and download-URL requests
	ReadRatePerSecond = 10.0

	// ReadBurst - burst capacity for read requests
	ReadBurst = 20

	// WriteRatePerSecond - sustained rate for mutations (create/rename/move/delete/permissions)
	WriteRatePerSecond = 4.0

	// WriteBurst - burst capacity for mutations
	WriteBurst = 8

	// RateLimitWarningThreshold - delay threshold to show warning (2 seconds)
	RateLimitWarningThreshold = 2 * time.Second

	// RateLimitWarningInterval - minimum interval between warnings (10 seconds)
	RateLimitWarningInterval = 10 * time.Second

	// DefaultRetryAfter - cooldown applied on a 429 with no usable Retry-After header
	DefaultRetryAfter = 5 * time.Second

	// MaxRetryAfter - cap on server-provided Retry-After values
	MaxRetryAfter = 2 * time.Minute
)

// Hierarchy
const (
	// MaxHierarchyDepth - walks deeper than this are treated as malformed
	// Listings from the server never nest this deep; hitting it means a cycle slipped past the visited set
	MaxHierarchyDepth = 4096
)
