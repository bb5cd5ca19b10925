// Package kmeclient implements the dual-protocol requester of the conformance
// harness: every ETSI 014 operation can be sent either query-style (GET with
// query parameters) or body-style (POST with a JSON body).
//
// Responses go through a strict decoder. A 2xx body that does not match the
// expected document, or a non-2xx body that is not a well-formed error envelope,
// is reported as a *SchemaViolationError: the server broke the wire contract and
// the scenario cannot continue. Rejections with a valid envelope are returned as
// *RejectedError and classified with Classify:
//
//	401              AuthorizationRejected
//	other 4xx        ValidationRejected
//	5xx              ServerError
//
// Connection, handshake and timeout failures are *TransportError. Requests a style
// cannot carry (a list of additional SAE ids in a query, several key ids in a
// GET dec_keys) fail with ErrNotExpressible before anything is sent.
package kmeclient
