// Package resourcecache materializes transient resources as files inside a
// lazily created, process-scoped temporary directory. Callers hand in either
// a byte slice or an HTTP/HTTPS URL and receive a file path they can pass to
// code that insists on reading from disk. Every file and the directory itself
// are removed when the Cache is destroyed, either explicitly or through the
// process-exit registry (DestroyAll).
//
// The directory is created at most once per Cache even under an unbounded
// number of concurrent first callers; downloads stream straight to disk and
// buffer whatever arrives before the destination file is open.
package resourcecache
