// Package identity implements the identity registry: public-key identities,
// their fingerprints and genesis records, and the owner bootstrap contract.
//
// It contains the identity primitives (fingerprinting, genesis verification,
// display name normalization), the Registry that enforces registration policy,
// and the memory, postgres and sqlite stores behind it.
package identity
