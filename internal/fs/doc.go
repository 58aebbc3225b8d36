// Package fs abstracts filesystem access behind an interface so the
// file-backed engine can be exercised against fault-injecting
// implementations in tests.
package fs
