package scenario

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/ruteri/etsi014-conformance/api/kmeclient"
	"github.com/ruteri/etsi014-conformance/identity"
	"github.com/ruteri/etsi014-conformance/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRequester struct {
	mock.Mock
}

func (m *mockRequester) EncKeys(ctx context.Context, style interfaces.Style, target interfaces.SAEID, req interfaces.KeyRequest) (*interfaces.KeyContainer, error) {
	args := m.Called(style, target, req)
	keys, _ := args.Get(0).(*interfaces.KeyContainer)
	return keys, args.Error(1)
}

func (m *mockRequester) DecKeys(ctx context.Context, style interfaces.Style, master interfaces.SAEID, keyIDs []string) (*interfaces.KeyContainer, error) {
	args := m.Called(style, master, keyIDs)
	keys, _ := args.Get(0).(*interfaces.KeyContainer)
	return keys, args.Error(1)
}

func (m *mockRequester) Status(ctx context.Context, target interfaces.SAEID) (*interfaces.Status, error) {
	args := m.Called(target)
	status, _ := args.Get(0).(*interfaces.Status)
	return status, args.Error(1)
}

func testRegistry(t *testing.T) *identity.Registry {
	t.Helper()
	identities := make(map[interfaces.Role]identity.Identity)
	for role, sae := range testSAEs {
		identities[role] = identity.Identity{SAEID: interfaces.SAEID(sae), BaseURL: "https://kme.invalid/api/v1/keys"}
	}
	reg, err := identity.New(identities, nil)
	require.NoError(t, err)
	return reg
}

// mockRunner returns a runner whose requesters are the given mocks, keyed by role.
func mockRunner(t *testing.T, requesters map[interfaces.Role]*mockRequester) *Runner {
	t.Helper()
	factory := func(id identity.Identity, hook func(kmeclient.Exchange)) interfaces.KeyRequester {
		m, ok := requesters[id.Role]
		require.True(t, ok, "unexpected role %s", id.Role)
		return m
	}
	return NewRunner(testRegistry(t), nil, discardLogger(), WithRequesterFactory(factory))
}

func container(material ...string) *interfaces.KeyContainer {
	c := &interfaces.KeyContainer{}
	for _, m := range material {
		c.Keys = append(c.Keys, interfaces.Key{KeyID: uuid.NewString(), Key: m})
	}
	return c
}

func roundTripScenario() Scenario {
	return Scenario{
		Name:   "round_trip",
		Family: FamilyHappyPath,
		Steps: []Step{
			issue("sae_slave", interfaces.QueryStyle, numbered(1)),
			retrieve(interfaces.RoleSlave, "sae_master", interfaces.BodyStyle, 0, Succeeds()),
		},
		Checks: []Check{RoundTrip(0, 1)},
	}
}

func TestRunPassesOnRoundTrip(t *testing.T) {
	issued := container("AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=")
	master, slave := new(mockRequester), new(mockRequester)
	master.On("EncKeys", interfaces.QueryStyle, interfaces.SAEID("sae_slave"), numbered(1)).Return(issued, nil).Once()
	slave.On("DecKeys", interfaces.BodyStyle, interfaces.SAEID("sae_master"), issued.IDs()).Return(issued, nil).Once()

	runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master, interfaces.RoleSlave: slave})
	res := runner.Run(context.Background(), roundTripScenario())

	assert.Equal(t, Passed, res.Verdict, res.Failures)
	assert.Empty(t, res.Error)
	master.AssertExpectations(t)
	slave.AssertExpectations(t)
}

func TestRunFailsOnDifferentMaterial(t *testing.T) {
	issued := container("AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=")
	tampered := &interfaces.KeyContainer{Keys: []interfaces.Key{{KeyID: issued.Keys[0].KeyID, Key: "AQECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="}}}

	master, slave := new(mockRequester), new(mockRequester)
	master.On("EncKeys", mock.Anything, mock.Anything, mock.Anything).Return(issued, nil)
	slave.On("DecKeys", mock.Anything, mock.Anything, mock.Anything).Return(tampered, nil)

	runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master, interfaces.RoleSlave: slave})
	res := runner.Run(context.Background(), roundTripScenario())

	assert.Equal(t, Failed, res.Verdict)
	require.NotEmpty(t, res.Failures)
	assert.Contains(t, res.Failures[0], "keys of step 1 differ from keys of step 0")
}

func TestRunFailsOnUnexpectedOutcomeAndSkipsLaterSteps(t *testing.T) {
	master, slave := new(mockRequester), new(mockRequester)
	master.On("EncKeys", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &kmeclient.RejectedError{StatusCode: http.StatusServiceUnavailable, Message: interfaces.ErrorMessage{Message: "empty"}})

	runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master, interfaces.RoleSlave: slave})
	res := runner.Run(context.Background(), roundTripScenario())

	assert.Equal(t, Failed, res.Verdict)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "server-error")
	slave.AssertNotCalled(t, "DecKeys", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunErrorsOnFatalOutcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transport", &kmeclient.TransportError{Method: http.MethodGet, URL: "https://kme", Err: errors.New("connection refused")}, "transport-failure"},
		{"schema", &kmeclient.SchemaViolationError{StatusCode: http.StatusOK, Err: errors.New("missing keys array")}, "schema-violation"},
		{"precondition", kmeclient.ErrNotExpressible, "precondition-failed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			master := new(mockRequester)
			master.On("EncKeys", mock.Anything, mock.Anything, mock.Anything).Return(nil, tc.err)

			runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master, interfaces.RoleSlave: new(mockRequester)})
			res := runner.Run(context.Background(), roundTripScenario())

			assert.Equal(t, Errored, res.Verdict)
			assert.Contains(t, res.Error, tc.want)
			assert.Empty(t, res.Failures)
		})
	}
}

func TestRunDetectsStyleDisagreement(t *testing.T) {
	master := new(mockRequester)
	master.On("EncKeys", interfaces.QueryStyle, mock.Anything, mock.Anything).
		Return(nil, &kmeclient.RejectedError{StatusCode: http.StatusBadRequest, Message: interfaces.ErrorMessage{Message: "bad size"}})
	master.On("EncKeys", interfaces.BodyStyle, mock.Anything, mock.Anything).
		Return(nil, &kmeclient.RejectedError{StatusCode: http.StatusUnauthorized, Message: interfaces.ErrorMessage{Message: "no"}})

	sc := Scenario{
		Name:   "size",
		Family: FamilyInputValidation,
		Steps: []Step{{
			Op: interfaces.OpEncKeys, As: interfaces.RoleMaster, Target: "sae_slave", Styles: interfaces.Styles,
			Request: interfaces.KeyRequest{Size: "-8"},
			Expect:  RejectedAsInvalid(http.StatusBadRequest),
		}},
	}

	runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master})
	res := runner.Run(context.Background(), sc)

	assert.Equal(t, Failed, res.Verdict)
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[0], "body style")
	assert.Contains(t, res.Failures[1], "disagree on the outcome")
}

func TestRunDetectsKeySizeDisagreement(t *testing.T) {
	master := new(mockRequester)
	master.On("EncKeys", interfaces.QueryStyle, mock.Anything, mock.Anything).Return(container("AAAAAA=="), nil)
	master.On("EncKeys", interfaces.BodyStyle, mock.Anything, mock.Anything).Return(container("AAAAAAAA"), nil)

	sc := Scenario{
		Name:   "equivalence",
		Family: FamilyProtocolEquivalence,
		Steps: []Step{{
			Op: interfaces.OpEncKeys, As: interfaces.RoleMaster, Target: "sae_slave", Styles: interfaces.Styles,
			Expect: Succeeds(),
		}},
	}

	runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master})
	res := runner.Run(context.Background(), sc)

	assert.Equal(t, Failed, res.Verdict)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "keys of different sizes")
}

func TestRunChecksStatusCodes(t *testing.T) {
	master := new(mockRequester)
	master.On("EncKeys", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &kmeclient.RejectedError{StatusCode: http.StatusNotFound, Message: interfaces.ErrorMessage{Message: "no route"}})

	step := Step{Op: interfaces.OpEncKeys, As: interfaces.RoleMaster, Target: " ", Styles: interfaces.Styles}
	runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master})

	step.Expect = RejectedAsInvalid(ambiguousPathStatuses...)
	res := runner.Run(context.Background(), Scenario{Name: "ambiguous", Steps: []Step{step}})
	assert.Equal(t, Passed, res.Verdict, res.Failures)

	step.Expect = RejectedAsInvalid(http.StatusBadRequest)
	res = runner.Run(context.Background(), Scenario{Name: "strict", Steps: []Step{step}})
	assert.Equal(t, Failed, res.Verdict)
	assert.Len(t, res.Failures, 2)
}

func TestRunAllCountsVerdicts(t *testing.T) {
	master := new(mockRequester)
	master.On("Status", interfaces.SAEID("sae_slave")).Return(&interfaces.Status{MasterSAEID: "sae_master", SlaveSAEID: "sae_slave", KeySize: 256}, nil)
	master.On("Status", interfaces.SAEID("sae_other")).Return(nil, &kmeclient.TransportError{Err: errors.New("timeout")})

	echo := func(name string, target interfaces.SAEID, slave interfaces.SAEID) Scenario {
		return Scenario{
			Name:   name,
			Family: FamilyDefaults,
			Steps:  []Step{{Op: interfaces.OpStatus, As: interfaces.RoleMaster, Target: target, Expect: Succeeds()}},
			Checks: []Check{StatusEchoesSAEIDs(0, "sae_master", slave)},
		}
	}

	runner := mockRunner(t, map[interfaces.Role]*mockRequester{interfaces.RoleMaster: master})
	report := NewRunner(runner.registry, nil, discardLogger(), WithRequesterFactory(runner.newRequester), WithParallelism(3)).
		RunAll(context.Background(), []Scenario{
			echo("passes", "sae_slave", "sae_slave"),
			echo("fails", "sae_slave", "sae_other"),
			echo("errors", "sae_other", "sae_other"),
		})

	require.Len(t, report.Results, 3)
	assert.Equal(t, []string{"passes", "fails", "errors"}, []string{report.Results[0].Name, report.Results[1].Name, report.Results[2].Name})
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Errored)
	assert.False(t, report.OK())
}

type recordingT struct {
	messages []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.messages = append(r.messages, format)
}

func TestResultMirror(t *testing.T) {
	rt := &recordingT{}
	Result{Name: "ok", Verdict: Passed}.Mirror(rt)
	assert.Empty(t, rt.messages)

	Result{
		Name:      "bad",
		Verdict:   Failed,
		Failures:  []string{"one", "two"},
		Exchanges: []kmeclient.Exchange{{Method: http.MethodGet, URL: "https://kme", StatusCode: 400}},
	}.Mirror(rt)
	assert.Len(t, rt.messages, 3)
}
