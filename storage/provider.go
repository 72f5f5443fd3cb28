package storage

// DatabaseProvider abstracts the low-level database operations so the
// payload backing can work with different backends without knowing the
// specific implementation details
type DatabaseProvider interface {
	// Get retrieves a value by key, nil when absent
	Get(key []byte) ([]byte, error)

	// Put stores a key-value pair
	Put(key, value []byte) error

	// Delete removes a key-value pair
	Delete(key []byte) error

	// Has checks if a key exists
	Has(key []byte) (bool, error)

	// Close closes the database connection
	Close() error
}
