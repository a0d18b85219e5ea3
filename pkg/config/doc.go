// Package config reads the merge engine's runtime settings: which
// optional sections to carry across a merge, the ceiling on the combined
// size of the input archives past which a merge is refused, and the REST
// API's bind address and auth key.
//
// A zero-valued Config is never used directly; Load (and its
// explicit-path sibling LoadFrom) fills in DefaultConfig, overlays
// any YAML found on disk via Viper, and validates the result before
// handing it back.
package config
