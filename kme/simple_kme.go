package kme

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/ruteri/etsi014-conformance/interfaces"
)

// Limits bounds what a single request may ask for. Sizes are in bits.
type Limits struct {
	KeySize          int `yaml:"key_size"`
	MinKeySize       int `yaml:"min_key_size"`
	MaxKeySize       int `yaml:"max_key_size"`
	MaxKeyCount      int `yaml:"max_key_count"`
	MaxKeyPerRequest int `yaml:"max_key_per_request"`
	MaxSAEIDCount    int `yaml:"max_sae_id_count"`
}

var DefaultLimits = Limits{
	KeySize:          256,
	MinKeySize:       64,
	MaxKeySize:       1024,
	MaxKeyCount:      100000,
	MaxKeyPerRequest: 128,
	MaxSAEIDCount:    8,
}

func (l Limits) Validate() error {
	switch {
	case l.MinKeySize <= 0 || l.MinKeySize%8 != 0:
		return fmt.Errorf("min key size %d must be a positive multiple of 8", l.MinKeySize)
	case l.MaxKeySize < l.MinKeySize || l.MaxKeySize%8 != 0:
		return fmt.Errorf("max key size %d must be a multiple of 8 not below %d", l.MaxKeySize, l.MinKeySize)
	case l.KeySize < l.MinKeySize || l.KeySize > l.MaxKeySize || l.KeySize%8 != 0:
		return fmt.Errorf("default key size %d must be a multiple of 8 within [%d, %d]", l.KeySize, l.MinKeySize, l.MaxKeySize)
	case l.MaxKeyPerRequest <= 0:
		return errors.New("max keys per request must be positive")
	case l.MaxKeyCount < l.MaxKeyPerRequest:
		return errors.New("max key count must be at least max keys per request")
	case l.MaxSAEIDCount < 0:
		return errors.New("max SAE id count must not be negative")
	}
	return nil
}

type storedKey struct {
	master   interfaces.SAEID
	material []byte
	// SAEs that were granted the key and did not retrieve it yet.
	pending map[interfaces.SAEID]struct{}
}

// SimpleKME keeps issued keys in memory until every authorized SAE retrieved them.
type SimpleKME struct {
	id     string
	limits Limits
	saes   map[interfaces.SAEID]struct{}

	mu   sync.Mutex
	keys map[string]*storedKey
}

var _ interfaces.KeyStore = (*SimpleKME)(nil)

// NewSimpleKME creates a key pool serving the given SAEs.
func NewSimpleKME(id string, saes []interfaces.SAEID, limits Limits) (*SimpleKME, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	if len(saes) < 2 {
		return nil, errors.New("at least two SAEs are required")
	}

	known := make(map[interfaces.SAEID]struct{}, len(saes))
	for _, sae := range saes {
		if strings.TrimSpace(string(sae)) == "" {
			return nil, errors.New("SAE ids must not be blank")
		}
		known[sae] = struct{}{}
	}

	return &SimpleKME{
		id:     id,
		limits: limits,
		saes:   known,
		keys:   make(map[string]*storedKey),
	}, nil
}

func (k *SimpleKME) ID() string {
	return k.id
}

func (k *SimpleKME) Limits() Limits {
	return k.limits
}

func (k *SimpleKME) Knows(sae interfaces.SAEID) bool {
	_, ok := k.saes[sae]
	return ok
}

// Status reports the limits and the number of keys issued by master that slave
// has not retrieved yet.
func (k *SimpleKME) Status(master, slave interfaces.SAEID) interfaces.Status {
	k.mu.Lock()
	stored := 0
	for _, key := range k.keys {
		if _, ok := key.pending[slave]; ok && key.master == master {
			stored++
		}
	}
	k.mu.Unlock()

	return interfaces.Status{
		SourceKMEID:      k.id,
		TargetKMEID:      k.id,
		MasterSAEID:      master,
		SlaveSAEID:       slave,
		KeySize:          k.limits.KeySize,
		StoredKeyCount:   stored,
		MaxKeyCount:      k.limits.MaxKeyCount,
		MaxKeyPerRequest: k.limits.MaxKeyPerRequest,
		MaxKeySize:       k.limits.MaxKeySize,
		MinKeySize:       k.limits.MinKeySize,
		MaxSAEIDCount:    k.limits.MaxSAEIDCount,
	}
}

// Issue validates the request and creates number fresh random keys of size bits.
func (k *SimpleKME) Issue(master, slave interfaces.SAEID, additional []interfaces.SAEID, number, size int) (*interfaces.KeyContainer, error) {
	if err := k.validatePair(master, slave); err != nil {
		return nil, err
	}
	if err := k.validateIssue(master, slave, additional, number, size); err != nil {
		return nil, err
	}

	pending := make(map[interfaces.SAEID]struct{}, len(additional)+1)
	pending[slave] = struct{}{}
	for _, sae := range additional {
		pending[sae] = struct{}{}
	}

	issued := make(map[string]*storedKey, number)
	container := &interfaces.KeyContainer{Keys: make([]interfaces.Key, 0, number)}
	for i := 0; i < number; i++ {
		material := make([]byte, size/8)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("could not generate key material: %w", err)
		}

		id := uuid.NewString()
		keyPending := make(map[interfaces.SAEID]struct{}, len(pending))
		for sae := range pending {
			keyPending[sae] = struct{}{}
		}
		issued[id] = &storedKey{master: master, material: material, pending: keyPending}
		container.Keys = append(container.Keys, interfaces.Key{KeyID: id, Key: base64.StdEncoding.EncodeToString(material)})
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys)+number > k.limits.MaxKeyCount {
		return nil, fmt.Errorf("%w: %d keys stored, limit %d", interfaces.ErrStoreFull, len(k.keys), k.limits.MaxKeyCount)
	}
	for id, key := range issued {
		k.keys[id] = key
	}
	return container, nil
}

// Retrieve hands out the requested keys to caller and forgets each key once no
// authorized SAE is left waiting for it.
func (k *SimpleKME) Retrieve(caller, master interfaces.SAEID, keyIDs []string) (*interfaces.KeyContainer, error) {
	if err := k.validatePair(master, caller); err != nil {
		return nil, err
	}
	if len(keyIDs) == 0 {
		return nil, fmt.Errorf("%w: no key ids requested", interfaces.ErrInvalidKeyRequest)
	}
	for _, id := range keyIDs {
		if !interfaces.IsUUID(id) {
			return nil, fmt.Errorf("%w: key id %q is not a UUID", interfaces.ErrInvalidKeyRequest, id)
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	container := &interfaces.KeyContainer{Keys: make([]interfaces.Key, 0, len(keyIDs))}
	for _, id := range keyIDs {
		key, ok := k.keys[strings.ToLower(id)]
		if !ok || key.master != master {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, id)
		}
		if _, ok := key.pending[caller]; !ok {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotAuthorized, id)
		}
		container.Keys = append(container.Keys, interfaces.Key{KeyID: id, Key: base64.StdEncoding.EncodeToString(key.material)})
	}

	for _, id := range keyIDs {
		id = strings.ToLower(id)
		key, ok := k.keys[id]
		if !ok {
			continue
		}
		delete(key.pending, caller)
		if len(key.pending) == 0 {
			delete(k.keys, id)
		}
	}
	return container, nil
}

func (k *SimpleKME) validatePair(master, slave interfaces.SAEID) error {
	if !k.Knows(master) {
		return fmt.Errorf("%w: %q", interfaces.ErrUnknownSAE, master)
	}
	if !k.Knows(slave) {
		return fmt.Errorf("%w: %q", interfaces.ErrUnknownSAE, slave)
	}
	if master == slave {
		return fmt.Errorf("%w: master and slave SAE ids are identical", interfaces.ErrInvalidKeyRequest)
	}
	return nil
}

func (k *SimpleKME) validateIssue(master, slave interfaces.SAEID, additional []interfaces.SAEID, number, size int) error {
	var errs []error
	if number < 1 || number > k.limits.MaxKeyPerRequest {
		errs = append(errs, fmt.Errorf("number %d must be within [1, %d]", number, k.limits.MaxKeyPerRequest))
	}
	if size%8 != 0 || size < k.limits.MinKeySize || size > k.limits.MaxKeySize {
		errs = append(errs, fmt.Errorf("size %d must be a multiple of 8 within [%d, %d]", size, k.limits.MinKeySize, k.limits.MaxKeySize))
	}

	if additional != nil {
		if len(additional) == 0 {
			errs = append(errs, errors.New("additional_slave_SAE_IDs must not be empty when present"))
		}
		if len(additional) > k.limits.MaxSAEIDCount {
			errs = append(errs, fmt.Errorf("at most %d additional SAE ids are allowed", k.limits.MaxSAEIDCount))
		}
		seen := make(map[interfaces.SAEID]struct{}, len(additional))
		for _, sae := range additional {
			switch {
			case strings.TrimSpace(string(sae)) == "":
				errs = append(errs, errors.New("additional SAE id must not be blank"))
			case sae == master:
				errs = append(errs, fmt.Errorf("additional SAE id %q is the master SAE", sae))
			case sae == slave:
				errs = append(errs, fmt.Errorf("additional SAE id %q is the slave SAE", sae))
			case !k.Knows(sae):
				errs = append(errs, fmt.Errorf("additional SAE id %q is unknown", sae))
			}
			if _, dup := seen[sae]; dup {
				errs = append(errs, fmt.Errorf("additional SAE id %q is duplicated", sae))
			}
			seen[sae] = struct{}{}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", interfaces.ErrInvalidKeyRequest, errors.Join(errs...))
}
