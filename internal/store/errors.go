package store

import "fmt"

// CacheWriteError reports that the backing store could not be written:
// permissions, a full disk, or a lock held by another writer.
type CacheWriteError struct {
	Table string
	Err   error
}

func (e *CacheWriteError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("cache write failed: %v", e.Err)
	}
	return fmt.Sprintf("cache write to table %q failed: %v", e.Table, e.Err)
}

func (e *CacheWriteError) Unwrap() error { return e.Err }

// CacheSchemaError reports rows or a table declaration that do not fit the
// declared schema.
type CacheSchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *CacheSchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("cache schema error in table %q: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("cache schema error in table %q, column %q: %s", e.Table, e.Column, e.Reason)
}
