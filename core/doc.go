// Package core contains the canonical webhook intake domain: entities,
// store contracts, registries, and engine wiring. Lower-level adapters must
// depend on this package; core must not depend on transport or persistence
// adapters.
package core
