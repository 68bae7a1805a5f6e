// Package async owns the deferred value primitives carried by batch streams.
//
// Ownership boundary:
//   - Promise: a value that settles exactly once (fulfilled or rejected)
//   - Iterable: a finite, non-restartable sequence produced over time
//   - constructors for both, including pull-driven generators that observe
//     cancellation through their context
package async
