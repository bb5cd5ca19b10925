// Package cryptoutils provides the TLS plumbing of the conformance harness.
//
// # Transport Factory
//
// TransportFactory turns one SAE identity into an *http.Client that:
//
//   - presents the SAE client certificate for mutual authentication
//   - validates the KME certificate against the single configured root
//   - refuses any protocol version below TLS 1.3
//   - never skips certificate verification
//
// Credentials are read with LoadKeyPair and LoadRootPool. Both fail when the
// files are unreadable or malformed; callers treat that as a fatal startup error.
//
// # Development PKI
//
// CertAuthority issues short-lived certificates for the bundled KME simulator
// and for tests. It is not meant for production identities.
package cryptoutils
