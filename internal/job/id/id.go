// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Prefix marks generated job ids.
const Prefix = "job-"

// Generate creates a new unique job ID.
// Format: job-<uuid v4>
// Example: job-9b2f0a3c-6a51-4a4e-8d0b-2f1f6c1d9e7a
func Generate() string {
	return Prefix + uuid.NewString()
}
