// Package api contains the HTTP surface of the ETSI GS QKD 014 key delivery API
// as used by the conformance harness.
//
// The resource layout is fixed by the standard:
//
//	{base}/{SAE_ID}/enc_keys   GET (query) or POST (JSON body), issue keys
//	{base}/{SAE_ID}/dec_keys   GET (query) or POST (JSON body), retrieve keys
//	{base}/{SAE_ID}/status     GET, per SAE pair defaults
//
// EndpointURL builds these paths. Sub-packages implement both ends of the API:
//
//   - kmeclient: the dual-protocol requester used by the scenario engine
//   - kmehandler: an in-memory KME served by the kmesim command and used as the
//     test double of the harness
package api
