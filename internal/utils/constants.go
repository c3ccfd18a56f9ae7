package utils

// Files API URL spaces. Listings returns JSON metadata, media returns
// raw content for the same remote path.
const (
	FilesListingsPrefix = "/files/v2/listings/system"
	FilesMediaPrefix    = "/files/v2/media/system"
	TokenPath           = "/token"
)

// Remote reference scheme
const RefScheme = "agave"

// Listing pagination
const DefaultPageSize = 100

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Request timeout applied to each remote call
const DefaultRequestTimeoutSeconds = 60

// Default transfer concurrency
const DefaultConcurrency = 5

// Resolver cache TTL
const DefaultCacheTTLSeconds = 300

// Schema version
const SchemaVersion = "1.0"

// LastModified format used by the files service. Timestamps carry a
// millisecond suffix and zone offset, e.g. 2019-06-17T14:03:02.000-05:00.
const APITimeFormat = "2006-01-02T15:04:05.000-07:00"
