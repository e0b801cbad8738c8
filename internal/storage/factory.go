package storage

import "strings"

// NewStorage creates the ObjectStorage selected by cfg.Type.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: ErrDisabled for type "none" or an empty bucket, or a client error.
func NewStorage(cfg *Config) (ObjectStorage, error) {
	switch cfg.Type {
	case StorageTypeNone:
		return nil, ErrDisabled
	case StorageTypeMemory:
		return NewMemoryStorage(cfg.PublicURL), nil
	}
	if cfg.Bucket == "" {
		return nil, ErrDisabled
	}

	// Auto-detect storage type if not specified
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(cfg)
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case endpoint == "" || strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
