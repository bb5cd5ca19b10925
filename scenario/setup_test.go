package scenario

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/etsi014-conformance/api/kmehandler"
	"github.com/ruteri/etsi014-conformance/config"
	"github.com/ruteri/etsi014-conformance/cryptoutils"
	"github.com/ruteri/etsi014-conformance/httpserver"
	"github.com/ruteri/etsi014-conformance/identity"
	"github.com/ruteri/etsi014-conformance/interfaces"
	"github.com/ruteri/etsi014-conformance/kme"
	"github.com/stretchr/testify/require"
)

var testSAEs = map[interfaces.Role]string{
	interfaces.RoleMaster:       "sae_master",
	interfaces.RoleSlave:        "sae_slave",
	interfaces.RoleUnauthorized: "sae_unauth",
	interfaces.RoleAdditional:   "sae_add",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type simulator struct {
	registry *identity.Registry
	factory  *cryptoutils.TransportFactory
}

// startSimulator runs the reference KME over mutual TLS and loads a registry
// pointing at it. wrap, when set, sits between the TLS listener and the KME.
func startSimulator(t *testing.T, wrap func(http.Handler) http.Handler) *simulator {
	t.Helper()
	logger := discardLogger()

	saes := make([]string, 0, len(testSAEs))
	storeSAEs := make([]interfaces.SAEID, 0, len(testSAEs))
	for _, role := range interfaces.Roles {
		saes = append(saes, testSAEs[role])
		storeSAEs = append(storeSAEs, interfaces.SAEID(testSAEs[role]))
	}

	pki, err := cryptoutils.WriteDevPKI(t.TempDir(), []string{"127.0.0.1", "localhost"}, saes)
	require.NoError(t, err)

	store, err := kme.NewSimpleKME("kme-e2e", storeSAEs, kme.DefaultLimits)
	require.NoError(t, err)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		Log:          logger,
		TLSCertPath:  pki.ServerCert,
		TLSKeyPath:   pki.ServerKey,
		ClientCAPath: pki.RootCA,
	}, kmehandler.NewHandler(store, "", logger))
	require.NoError(t, err)

	handler := srv.Handler()
	if wrap != nil {
		handler = wrap(handler)
	}
	ts := httptest.NewUnstartedServer(handler)
	ts.TLS = srv.TLSConfig()
	ts.StartTLS()
	t.Cleanup(ts.Close)

	cfg := &config.Config{
		BaseServerURL:  ts.URL + kmehandler.DefaultBasePath,
		BaseClientURL:  ts.URL + kmehandler.DefaultBasePath,
		RootCA:         pki.RootCA,
		RequestTimeout: 10 * time.Second,
		Identities:     make(map[interfaces.Role]config.IdentityConfig),
	}
	for role, sae := range testSAEs {
		cfg.Identities[role] = config.IdentityConfig{SAEID: sae, Cert: pki.Identities[sae]}
	}
	require.NoError(t, cfg.Validate())

	reg, err := identity.Load(cfg)
	require.NoError(t, err)

	return &simulator{
		registry: reg,
		factory:  cryptoutils.NewTransportFactory(reg.Roots(), cfg.RequestTimeout),
	}
}

func (s *simulator) runner(opts ...Option) *Runner {
	return NewRunner(s.registry, s.factory, discardLogger(), opts...)
}

func resultsByName(report *Report) map[string]Result {
	out := make(map[string]Result, len(report.Results))
	for _, res := range report.Results {
		out[res.Name] = res
	}
	return out
}
