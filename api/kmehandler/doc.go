// Package kmehandler serves the ETSI GS QKD 014 key delivery API on top of an
// interfaces.KeyStore.
//
// The calling SAE is identified by the common name of the client certificate
// presented during the TLS handshake. Every route accepts both GET with query
// parameters and POST with a JSON body:
//
//	{base}/{slave_SAE_ID}/enc_keys   issue keys for the slave (caller is the master)
//	{base}/{master_SAE_ID}/dec_keys  retrieve keys issued by the master
//	{base}/{slave_SAE_ID}/status     defaults and limits for the pair
//
// Every non-success response carries an ErrorMessage envelope. Authorization
// failures are reported with 401, malformed or unknown input with 400, a full key
// store with 503.
package kmehandler
