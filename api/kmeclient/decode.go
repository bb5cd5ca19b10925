package kmeclient

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ruteri/etsi014-conformance/interfaces"
)

// Extension members (key_ID_extension, key_extension, key_container_extension)
// are allowed and ignored.
type wireKey struct {
	KeyID *string `json:"key_ID"`
	Key   *string `json:"key"`
}

type wireKeyContainer struct {
	Keys *[]wireKey `json:"keys"`
}

func decodeKeyContainer(body []byte) (*interfaces.KeyContainer, error) {
	var wire wireKeyContainer
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("key container: %w", err)
	}
	if wire.Keys == nil {
		return nil, errors.New("key container: missing keys array")
	}

	container := &interfaces.KeyContainer{Keys: make([]interfaces.Key, 0, len(*wire.Keys))}
	for i, k := range *wire.Keys {
		if k.KeyID == nil {
			return nil, fmt.Errorf("key container: keys[%d]: missing key_ID", i)
		}
		if !interfaces.IsUUID(*k.KeyID) {
			return nil, fmt.Errorf("key container: keys[%d]: key_ID %q is not a UUID", i, *k.KeyID)
		}
		if k.Key == nil || *k.Key == "" {
			return nil, fmt.Errorf("key container: keys[%d]: missing key", i)
		}
		if _, err := base64.StdEncoding.DecodeString(*k.Key); err != nil {
			return nil, fmt.Errorf("key container: keys[%d]: key is not base64: %w", i, err)
		}
		container.Keys = append(container.Keys, interfaces.Key{KeyID: *k.KeyID, Key: *k.Key})
	}
	return container, nil
}

type wireStatus struct {
	MasterSAEID *string `json:"master_SAE_ID"`
	SlaveSAEID  *string `json:"slave_SAE_ID"`
	KeySize     *int    `json:"key_size"`
}

func decodeStatus(body []byte) (*interfaces.Status, error) {
	var wire wireStatus
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	var missing []error
	if wire.MasterSAEID == nil {
		missing = append(missing, errors.New("status: missing master_SAE_ID"))
	}
	if wire.SlaveSAEID == nil {
		missing = append(missing, errors.New("status: missing slave_SAE_ID"))
	}
	if wire.KeySize == nil {
		missing = append(missing, errors.New("status: missing key_size"))
	} else if *wire.KeySize <= 0 {
		missing = append(missing, fmt.Errorf("status: key_size %d is not positive", *wire.KeySize))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	var status interfaces.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &status, nil
}

type wireErrorMessage struct {
	Message *string   `json:"message"`
	Details *[]string `json:"details"`
}

func decodeErrorMessage(body []byte) (*interfaces.ErrorMessage, error) {
	var wire wireErrorMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("error envelope: %w", err)
	}
	if wire.Message == nil {
		return nil, errors.New("error envelope: missing message")
	}

	msg := &interfaces.ErrorMessage{Message: *wire.Message}
	if wire.Details != nil {
		msg.Details = *wire.Details
	}
	return msg, nil
}
