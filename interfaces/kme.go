package interfaces

import (
	"context"
	"errors"
)

// KeyRequester issues ETSI 014 requests on behalf of a single SAE identity.
//
// Implementations must return a typed error for every non-success exchange so the
// caller can classify it: rejected requests, transport failures, schema
// violations, and requests the chosen style cannot express are all distinct.
type KeyRequester interface {
	// EncKeys requests new keys for the target SAE.
	EncKeys(ctx context.Context, style Style, target SAEID, req KeyRequest) (*KeyContainer, error)

	// DecKeys retrieves keys issued by the master SAE. Query style accepts exactly
	// one identifier.
	DecKeys(ctx context.Context, style Style, master SAEID, keyIDs []string) (*KeyContainer, error)

	// Status reports the defaults of the (caller, target) SAE pair.
	Status(ctx context.Context, target SAEID) (*Status, error)
}

// KeyStore is the key pool behind a simulated KME.
//
// Issue and Retrieve return errors wrapping one of the sentinel errors below so
// the HTTP layer can map them to status codes.
type KeyStore interface {
	// ID is reported as both source and target KME id.
	ID() string
	// Knows reports whether the SAE is registered with the KME.
	Knows(SAEID) bool
	// Status reports the defaults and limits for the (master, slave) pair.
	Status(master, slave SAEID) Status
	// Issue creates number keys of size bits shared with slave and additional.
	Issue(master, slave SAEID, additional []SAEID, number, size int) (*KeyContainer, error)
	// Retrieve hands out keys issued by master to caller. Either every key is
	// returned or none is.
	Retrieve(caller, master SAEID, keyIDs []string) (*KeyContainer, error)
}

var (
	ErrInvalidKeyRequest = errors.New("invalid key request")
	ErrUnknownSAE        = errors.New("unknown SAE")
	ErrKeyNotFound       = errors.New("key not found")
	ErrNotAuthorized     = errors.New("SAE is not authorized for key")
	ErrStoreFull         = errors.New("key store is full")
)
