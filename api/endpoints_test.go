package api

import (
	"testing"

	"github.com/ruteri/etsi014-conformance/interfaces"
	"github.com/stretchr/testify/assert"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		target interfaces.SAEID
		op     interfaces.Operation
		want   string
	}{
		{"enc_keys", "https://kme/api/v1/keys", "sae_b", interfaces.OpEncKeys, "https://kme/api/v1/keys/sae_b/enc_keys"},
		{"dec_keys", "https://kme/api/v1/keys", "sae_a", interfaces.OpDecKeys, "https://kme/api/v1/keys/sae_a/dec_keys"},
		{"status", "https://kme/api/v1/keys", "sae_b", interfaces.OpStatus, "https://kme/api/v1/keys/sae_b/status"},
		{"trailing slash on base", "https://kme/api/v1/keys/", "sae_b", interfaces.OpStatus, "https://kme/api/v1/keys/sae_b/status"},
		{"space only target kept", "https://kme/api/v1/keys", " ", interfaces.OpEncKeys, "https://kme/api/v1/keys/ /enc_keys"},
		{"empty target kept", "https://kme/api/v1/keys", "", interfaces.OpDecKeys, "https://kme/api/v1/keys//dec_keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EndpointURL(tt.base, tt.target, tt.op))
		})
	}
}
