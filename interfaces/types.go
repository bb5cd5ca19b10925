package interfaces

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SAEID identifies a Secure Application Entity. It is passed through verbatim.
type SAEID string

func (id SAEID) String() string {
	return string(id)
}

// Role names an identity taking part in a conformance run.
type Role string

const (
	// RoleMaster requests new keys through enc_keys.
	RoleMaster Role = "master"
	// RoleSlave is the target of enc_keys and retrieves keys through dec_keys.
	RoleSlave Role = "slave"
	// RoleUnauthorized is never granted access to any key.
	RoleUnauthorized Role = "unauthorized"
	// RoleAdditional is granted access only when named in additional_slave_SAE_IDs.
	RoleAdditional Role = "additional"
)

// Roles lists every role in a fixed order.
var Roles = []Role{RoleMaster, RoleSlave, RoleUnauthorized, RoleAdditional}

// Operation is the last path segment of an ETSI 014 resource.
type Operation string

const (
	OpEncKeys Operation = "enc_keys"
	OpDecKeys Operation = "dec_keys"
	OpStatus  Operation = "status"
)

// Key is a single entry of a KeyContainer.
// Key material is base64 encoded and absent when only identifiers are exchanged.
type Key struct {
	KeyID string `json:"key_ID"`
	Key   string `json:"key,omitempty"`
}

// Material decodes the base64 key material.
func (k Key) Material() ([]byte, error) {
	if k.Key == "" {
		return nil, fmt.Errorf("key %s carries no material", k.KeyID)
	}
	return base64.StdEncoding.DecodeString(k.Key)
}

// KeyContainer is returned by both enc_keys and dec_keys.
type KeyContainer struct {
	Keys []Key `json:"keys"`
}

// IDs returns the identifiers of every key in the container.
func (c *KeyContainer) IDs() []string {
	ids := make([]string, 0, len(c.Keys))
	for _, k := range c.Keys {
		ids = append(ids, k.KeyID)
	}
	return ids
}

// ByID indexes the container by key identifier.
func (c *KeyContainer) ByID() map[string]Key {
	m := make(map[string]Key, len(c.Keys))
	for _, k := range c.Keys {
		m[k.KeyID] = k
	}
	return m
}

// KeyID is the identifiers-only form of a Key used in dec_keys request bodies.
type KeyID struct {
	KeyID string `json:"key_ID"`
}

// KeyIDs is the body of a POST dec_keys request.
type KeyIDs struct {
	KeyIDs []KeyID `json:"key_IDs"`
}

// NewKeyIDs builds a dec_keys request body from raw identifiers.
func NewKeyIDs(ids []string) KeyIDs {
	req := KeyIDs{KeyIDs: make([]KeyID, 0, len(ids))}
	for _, id := range ids {
		req.KeyIDs = append(req.KeyIDs, KeyID{KeyID: id})
	}
	return req
}

// Status is the response of the status endpoint.
type Status struct {
	SourceKMEID      string `json:"source_KME_ID"`
	TargetKMEID      string `json:"target_KME_ID"`
	MasterSAEID      SAEID  `json:"master_SAE_ID"`
	SlaveSAEID       SAEID  `json:"slave_SAE_ID"`
	KeySize          int    `json:"key_size"`
	StoredKeyCount   int    `json:"stored_key_count"`
	MaxKeyCount      int    `json:"max_key_count"`
	MaxKeyPerRequest int    `json:"max_key_per_request"`
	MaxKeySize       int    `json:"max_key_size"`
	MinKeySize       int    `json:"min_key_size"`
	MaxSAEIDCount    int    `json:"max_SAE_ID_count"`
}

// ErrorMessage is the envelope every non-success response must carry.
type ErrorMessage struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Param is a request parameter kept in its textual form so malformed values
// such as "abc01" can be sent. The empty Param means the parameter is absent.
type Param string

// IntParam formats an integer parameter.
func IntParam(v int) Param {
	return Param(strconv.Itoa(v))
}

// IsSet reports whether the parameter is present.
func (p Param) IsSet() bool {
	return p != ""
}

// JSONValue returns the value to place in a JSON body: a number when the text
// parses as an integer, the raw string otherwise.
func (p Param) JSONValue() any {
	if v, err := strconv.ParseInt(string(p), 10, 64); err == nil {
		return v
	}
	return string(p)
}

// KeyRequest carries the enc_keys parameters.
// A nil AdditionalSlaveSAEIDs is omitted, a non-nil empty slice is sent as [].
type KeyRequest struct {
	Number                Param
	Size                  Param
	AdditionalSlaveSAEIDs []SAEID
}

// HasAdditionalSlaveSAEIDs reports whether the list is part of the request.
func (r KeyRequest) HasAdditionalSlaveSAEIDs() bool {
	return r.AdditionalSlaveSAEIDs != nil
}

// IsUUID reports whether s is a UUID in canonical textual form.
func IsUUID(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return strings.EqualFold(id.String(), s)
}
