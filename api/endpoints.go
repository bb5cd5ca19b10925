package api

import (
	"strings"

	"github.com/ruteri/etsi014-conformance/interfaces"
)

// EndpointURL returns {base}/{target}/{op}.
//
// The target is inserted verbatim. A blank or space-only SAE id is not rejected
// or trimmed here; the harness relies on sending it as is to observe how the
// server handles malformed path segments.
func EndpointURL(baseURL string, target interfaces.SAEID, op interfaces.Operation) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + string(target) + "/" + string(op)
}
