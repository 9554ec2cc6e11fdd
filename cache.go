package dspruntime

// CacheKey identifies a linkage artifact.
type CacheKey string

const cacheKeyVersion = "v1"

// NewCacheKey derives the key for the artifact produced by linking the
// program with the given identity on backend with opts. Equal inputs give
// equal keys.
func NewCacheKey(programID, backend string, opts LinkOptions) CacheKey {
	return CacheKey(cacheKeyVersion + "/" + backend + "/" + programID + "/" + opts.Fingerprint())
}

// LinkerCache stores linkage artifacts across Link calls.
//
// A cache is advisory: performers work with a cache that always misses and
// treat entries that fail validation as misses. Implementations must be safe
// for concurrent use since performers on different threads may share one.
// Callers must not modify slices passed to Put or returned by Get.
type LinkerCache interface {
	Get(key CacheKey) ([]byte, bool)
	Put(key CacheKey, artifact []byte)
}
