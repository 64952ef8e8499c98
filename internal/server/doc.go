// Package server hosts the Fiber HTTP facade that lets local tools hand data
// or URLs to the resource cache and receive file paths back, plus the shared
// upstream http.Client used for downloads. The facade is a thin layer: every
// route maps onto one resourcecache operation, and errors are translated into
// JSON error codes. Keep exports narrow and accept explicit dependencies.
package server
