// Package interfaces defines the core types and interfaces of the ETSI GS QKD 014
// conformance harness, separating interface definitions from implementations.
//
// # Wire Types
//
// The ETSI 014 key delivery API exchanges a small set of JSON documents:
//
//   - KeyContainer: the list of keys returned by enc_keys and dec_keys
//   - KeyIDs: the identifiers-only list posted to dec_keys
//   - Status: the per SAE pair defaults reported by the status endpoint
//   - ErrorMessage: the envelope carried by every non-success response
//
// # Identities
//
// SAEID is an opaque Secure Application Entity identifier. The harness never
// normalizes it, so malformed identifiers reach the server exactly as configured.
// Role names the four identities every conformance run needs: the primary requester
// (master), the primary retriever (slave), an unauthorized third party, and an
// additional slave named through additional_slave_SAE_IDs.
//
// # Protocol Styles
//
// Style is a closed enumeration of the two wire encodings of the same logical
// request: QueryStyle (GET with query parameters) and BodyStyle (POST with a JSON
// body). No other value can be constructed.
//
// # Requester Contract
//
// KeyRequester is the contract the scenario engine consumes. The api/kmeclient
// package implements it over HTTPS.
package interfaces
