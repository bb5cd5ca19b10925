// Package identity holds the SAE identities of a conformance run together with
// their credential material. A Registry is loaded once at startup and is never
// mutated afterwards, so it can be shared by concurrently running scenarios.
package identity

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/ruteri/etsi014-conformance/config"
	"github.com/ruteri/etsi014-conformance/cryptoutils"
	"github.com/ruteri/etsi014-conformance/interfaces"
)

// Identity is one SAE as seen by the harness.
type Identity struct {
	Role  interfaces.Role
	SAEID interfaces.SAEID

	// BaseURL is the KME this SAE talks to.
	BaseURL string

	Certificate tls.Certificate
}

// Registry maps every role to its identity and holds the shared trust anchor.
type Registry struct {
	identities map[interfaces.Role]Identity
	roots      *x509.CertPool
}

// Load reads every credential named by the configuration. Any unreadable or
// malformed file is returned as an error; callers abort the run on it.
func Load(cfg *config.Config) (*Registry, error) {
	roots, err := cryptoutils.LoadRootPool(cfg.RootCA)
	if err != nil {
		return nil, err
	}

	identities := make(map[interfaces.Role]Identity, len(interfaces.Roles))
	for _, role := range interfaces.Roles {
		idCfg, ok := cfg.Identities[role]
		if !ok {
			return nil, fmt.Errorf("no identity configured for role %s", role)
		}

		cert, err := cryptoutils.LoadKeyPair(idCfg.Cert, idCfg.Key)
		if err != nil {
			return nil, fmt.Errorf("could not load %s identity: %w", role, err)
		}

		identities[role] = Identity{
			Role:        role,
			SAEID:       interfaces.SAEID(idCfg.SAEID),
			BaseURL:     baseURLFor(cfg, role),
			Certificate: cert,
		}
	}

	return New(identities, roots)
}

// New builds a registry from already loaded identities. Every role must be present.
func New(identities map[interfaces.Role]Identity, roots *x509.CertPool) (*Registry, error) {
	copied := make(map[interfaces.Role]Identity, len(identities))
	for _, role := range interfaces.Roles {
		id, ok := identities[role]
		if !ok {
			return nil, fmt.Errorf("missing identity for role %s", role)
		}
		id.Role = role
		copied[role] = id
	}

	return &Registry{identities: copied, roots: roots}, nil
}

// Identity returns the identity of a role. Roles outside interfaces.Roles panic,
// since the role set is closed and every role is loaded by construction.
func (r *Registry) Identity(role interfaces.Role) Identity {
	id, ok := r.identities[role]
	if !ok {
		panic(fmt.Sprintf("identity: unknown role %q", role))
	}
	return id
}

// SAEID is a shorthand for Identity(role).SAEID.
func (r *Registry) SAEID(role interfaces.Role) interfaces.SAEID {
	return r.Identity(role).SAEID
}

// Roots returns the pinned trust anchor.
func (r *Registry) Roots() *x509.CertPool {
	return r.roots
}

// The master SAE talks to the server-side KME, every other SAE to the client side.
func baseURLFor(cfg *config.Config, role interfaces.Role) string {
	if role == interfaces.RoleMaster {
		return cfg.BaseServerURL
	}
	return cfg.BaseClientURL
}
