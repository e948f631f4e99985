package domain

import "errors"

var (
	// ErrInvalidArgument signals a malformed query or limit.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmbedderUnavailable signals an embedding model that failed to load.
	// This is fatal for every node depending on that model and is never retried.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
	// ErrEmbeddingProviderError signals an embedding provider API failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNodeUnavailable signals a transient node failure, retried by the router.
	ErrNodeUnavailable = errors.New("node unavailable")
	// ErrCacheCorrupt signals a malformed cache entry, treated as a miss.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
	// ErrEnvelopeExpired signals an envelope older than its freshness window.
	ErrEnvelopeExpired = errors.New("envelope expired")
)
