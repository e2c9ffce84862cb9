// Package health checks the reachability of cluster services over HTTP.
package health
