// Package shard spreads string keys over a fixed number of stripes.
package shard

import (
	"hash/fnv"
)

// Index returns the stripe for key in [0, numShards).
// With numShards <= 1 every key lands on stripe 0.
func Index(key string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(numShards))
}

// Stripe combines a namespace and a key so that equal keys of different
// namespaces do not share a stripe by construction.
func Stripe(namespace, key string, numShards int) int {
	return Index(namespace+"#"+key, numShards)
}
