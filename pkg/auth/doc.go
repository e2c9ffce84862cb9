// Package auth resolves which groups a bearer token may operate on.
package auth
