// Package core defines the shared language of churnwatch.
//
// This package contains:
//   - The raw sales table and the detected schema mapping
//   - Calendar spans and periods used as aggregation buckets
//   - Aggregated, trend, risk and churn records passed between stages
//   - The error taxonomy returned by the analysis pipeline
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
