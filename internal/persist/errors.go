package persist

import "fmt"

// StorageError means the asset could not be stored. The returned item points
// at the provider URL instead.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("persist: storage: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// MetadataError means the asset is stored but its gallery row is missing.
// The object stays in place for reconciliation.
type MetadataError struct {
	Key string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("persist: metadata for %s: %v", e.Key, e.Err)
}
func (e *MetadataError) Unwrap() error { return e.Err }
