/*
Package health samples a capture source and reduces the sample to an
Observation for the freeze detector.

Two strategies exist and exactly one is chosen at configuration time:

  - screenshot: request a small PNG of the source and digest the encoded
    bytes with BLAKE2b-128. Identical digests on consecutive samples mean the
    source has stopped producing new frames.
  - scene: check whether the source is an enabled item of the current program
    scene. A source that is missing from the scene is resolved by a
    FallbackPolicy.

A sample that cannot be taken returns an error matching ErrUnavailable. The
caller must not count it toward a freeze streak.
*/
package health
