// Package bulk partitions large inputs into batches and runs them under a
// concurrency bound, collecting per-batch results and errors.
package bulk
