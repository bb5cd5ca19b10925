package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/ruteri/etsi014-conformance/config"
	"github.com/ruteri/etsi014-conformance/cryptoutils"
	"github.com/ruteri/etsi014-conformance/identity"
	"github.com/ruteri/etsi014-conformance/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableAgainstSimulator(t *testing.T) {
	sim := startSimulator(t, nil)
	table := DefaultTable(sim.registry)

	report := sim.runner(WithParallelism(4)).RunAll(context.Background(), table)
	for _, res := range report.Results {
		t.Run(res.Name, func(t *testing.T) {
			res.Mirror(t)
			assert.Equal(t, Passed, res.Verdict)
		})
	}

	assert.True(t, report.OK())
	assert.Equal(t, len(table), report.Passed)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Errored)
}

func TestSequentialAndParallelRunsAgree(t *testing.T) {
	sim := startSimulator(t, nil)
	table := Filter(DefaultTable(sim.registry), []Family{FamilyHappyPath, FamilyExtendedAuthorization}, nil)

	sequential := sim.runner().RunAll(context.Background(), table)
	parallel := sim.runner(WithParallelism(len(table))).RunAll(context.Background(), table)

	require.Len(t, parallel.Results, len(sequential.Results))
	for i := range sequential.Results {
		assert.Equal(t, sequential.Results[i].Name, parallel.Results[i].Name)
		assert.Equal(t, sequential.Results[i].Verdict, parallel.Results[i].Verdict)
	}
	assert.True(t, parallel.OK())
}

// lyingStatus answers status with swapped SAE ids and a key size the KME does
// not issue by default.
func lyingStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/status") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(interfaces.Status{
			MasterSAEID: interfaces.SAEID(testSAEs[interfaces.RoleSlave]),
			SlaveSAEID:  interfaces.SAEID(testSAEs[interfaces.RoleMaster]),
			KeySize:     128,
		})
	})
}

func TestFaultyStatusFailsDefaults(t *testing.T) {
	sim := startSimulator(t, lyingStatus)
	table := Filter(DefaultTable(sim.registry), []Family{FamilyDefaults, FamilyHappyPath}, nil)

	report := sim.runner(WithParallelism(2)).RunAll(context.Background(), table)
	results := resultsByName(report)
	assert.False(t, report.OK())

	for _, name := range []string{
		"defaults/default_values_match_status/query",
		"defaults/default_values_match_status/body",
		"defaults/status_echoes_sae_ids",
	} {
		res := results[name]
		assert.Equal(t, Failed, res.Verdict, name)
		assert.NotEmpty(t, res.Failures, name)
		assert.NotEmpty(t, res.Exchanges, name)
	}

	assert.Equal(t, Passed, results["defaults/count_fidelity/query"].Verdict)
	assert.Equal(t, Passed, results["happy_path/issue=query/retrieve=body"].Verdict)
}

// plainTextRejections replaces every error envelope with a plain text body.
func plainTextRejections(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &capture{header: http.Header{}}
		next.ServeHTTP(rec, r)
		if rec.status >= 400 {
			http.Error(w, "request rejected", rec.status)
			return
		}
		for k, v := range rec.header {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.status)
		_, _ = w.Write(rec.body.Bytes())
	})
}

type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func TestMalformedEnvelopeErrorsScenario(t *testing.T) {
	sim := startSimulator(t, plainTextRejections)
	table := DefaultTable(sim.registry)

	report := sim.runner(WithParallelism(4)).RunAll(context.Background(), table)
	results := resultsByName(report)

	for _, sc := range table {
		res := results[sc.Name]
		switch sc.Family {
		case FamilyInputValidation, FamilyAuthorizationIsolation:
			assert.Equal(t, Errored, res.Verdict, sc.Name)
			assert.Contains(t, res.Error, "schema-violation", sc.Name)
		default:
			assert.Equal(t, Passed, res.Verdict, sc.Name)
		}
	}
}

// blankMessages keeps the status of every rejection but empties its message.
func blankMessages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &capture{header: http.Header{}}
		next.ServeHTTP(rec, r)
		for k, v := range rec.header {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.status)
		if rec.status >= 400 {
			_, _ = w.Write([]byte(`{"message":""}`))
			return
		}
		_, _ = w.Write(rec.body.Bytes())
	})
}

func TestEmptyRejectionMessageFailsScenario(t *testing.T) {
	sim := startSimulator(t, blankMessages)
	table := Filter(DefaultTable(sim.registry), []Family{FamilyInputValidation, FamilyAuthorizationIsolation, FamilyHappyPath}, nil)

	report := sim.runner(WithParallelism(4)).RunAll(context.Background(), table)
	results := resultsByName(report)
	assert.False(t, report.OK())

	for _, sc := range table {
		res := results[sc.Name]
		if sc.Family == FamilyHappyPath {
			assert.Equal(t, Passed, res.Verdict, sc.Name)
			continue
		}
		assert.Equal(t, Failed, res.Verdict, sc.Name)
		require.NotEmpty(t, res.Failures, sc.Name)
		assert.Contains(t, strings.Join(res.Failures, "\n"), "empty message", sc.Name)
	}
}

// reversedDecKeys returns retrieved keys in reverse order.
func reversedDecKeys(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &capture{header: http.Header{}}
		next.ServeHTTP(rec, r)

		var container interfaces.KeyContainer
		if !strings.HasSuffix(r.URL.Path, "/dec_keys") || rec.status != http.StatusOK || json.Unmarshal(rec.body.Bytes(), &container) != nil {
			for k, v := range rec.header {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.status)
			_, _ = w.Write(rec.body.Bytes())
			return
		}

		for i, j := 0, len(container.Keys)-1; i < j; i, j = i+1, j-1 {
			container.Keys[i], container.Keys[j] = container.Keys[j], container.Keys[i]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(container)
	})
}

func TestMultiKeyRoundTripIgnoresOrder(t *testing.T) {
	sim := startSimulator(t, reversedDecKeys)
	table := Filter(DefaultTable(sim.registry), nil, regexp.MustCompile(`^happy_path/multi_key$`))
	require.Len(t, table, 1)

	report := sim.runner().RunAll(context.Background(), table)
	report.Results[0].Mirror(t)
	assert.Equal(t, Passed, report.Results[0].Verdict)
}

func TestUnreachableKMEErrorsScenario(t *testing.T) {
	sim := startSimulator(t, nil)
	identities := make(map[interfaces.Role]identity.Identity)
	for _, role := range interfaces.Roles {
		id := sim.registry.Identity(role)
		id.BaseURL = "https://127.0.0.1:1/api/v1/keys"
		identities[role] = id
	}
	reg, err := identity.New(identities, sim.registry.Roots())
	require.NoError(t, err)

	runner := NewRunner(reg, sim.factory, discardLogger())
	table := Filter(DefaultTable(reg), []Family{FamilyHappyPath}, nil)
	report := runner.RunAll(context.Background(), table)

	assert.Equal(t, len(table), report.Errored)
	for _, res := range report.Results {
		assert.Contains(t, res.Error, "transport-failure")
		require.NotEmpty(t, res.Exchanges)
		assert.NotEmpty(t, res.Exchanges[0].Error)
	}
}

// TestConformance runs the whole table against the KME configured through the
// ETSI_014_TEST_SUITE_* environment.
func TestConformance(t *testing.T) {
	if os.Getenv(config.EnvBaseServerURL) == "" {
		t.Skipf("%s not set", config.EnvBaseServerURL)
	}

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	reg, err := identity.Load(cfg)
	require.NoError(t, err)

	runner := NewRunner(reg, cryptoutils.NewTransportFactory(reg.Roots(), cfg.RequestTimeout), discardLogger())
	report := runner.RunAll(context.Background(), DefaultTable(reg))
	for _, res := range report.Results {
		t.Run(res.Name, func(t *testing.T) {
			res.Mirror(t)
		})
	}
}
