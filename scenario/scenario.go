package scenario

import (
	"fmt"

	"github.com/ruteri/etsi014-conformance/api/kmeclient"
	"github.com/ruteri/etsi014-conformance/interfaces"
)

// Family groups scenarios by the property they verify.
type Family string

const (
	FamilyHappyPath              Family = "happy_path"
	FamilyAuthorizationIsolation Family = "authorization_isolation"
	FamilyExtendedAuthorization  Family = "extended_authorization"
	FamilyInputValidation        Family = "input_validation"
	FamilyDefaults               Family = "defaults"
	FamilyProtocolEquivalence    Family = "protocol_equivalence"
)

var Families = []Family{
	FamilyHappyPath,
	FamilyAuthorizationIsolation,
	FamilyExtendedAuthorization,
	FamilyInputValidation,
	FamilyDefaults,
	FamilyProtocolEquivalence,
}

// ParseFamily validates a family name.
func ParseFamily(v string) (Family, error) {
	for _, f := range Families {
		if string(f) == v {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown scenario family %q", v)
}

// Directory resolves roles to SAE ids. *identity.Registry implements it.
type Directory interface {
	SAEID(interfaces.Role) interfaces.SAEID
}

// RoleNames is a Directory returning placeholder ids such as "<master>", used
// to describe the table without loading credentials.
type RoleNames struct{}

func (RoleNames) SAEID(role interfaces.Role) interfaces.SAEID {
	return interfaces.SAEID("<" + string(role) + ">")
}

// KeyIDSource names the key ids a dec_keys step asks for.
type KeyIDSource struct {
	step    int
	ids     []string
	literal bool
}

// FromStep takes the ids of the keys returned by an earlier step. When that
// step ran in several styles, the keys of its first style are used.
func FromStep(step int) KeyIDSource {
	return KeyIDSource{step: step}
}

// KeyIDs uses the given ids verbatim.
func KeyIDs(ids ...string) KeyIDSource {
	return KeyIDSource{ids: ids, literal: true}
}

func (s KeyIDSource) String() string {
	if s.literal {
		return fmt.Sprintf("%q", s.ids)
	}
	return fmt.Sprintf("keys of step %d", s.step)
}

// Expect is the outcome a step must produce.
// Statuses, when set, restricts the HTTP status of a rejection.
type Expect struct {
	Outcome  kmeclient.Outcome
	Statuses []int
}

func Succeeds() Expect {
	return Expect{Outcome: kmeclient.OutcomeSuccess}
}

func RejectedAsInvalid(statuses ...int) Expect {
	return Expect{Outcome: kmeclient.OutcomeValidationRejected, Statuses: statuses}
}

func RejectedAsUnauthorized() Expect {
	return Expect{Outcome: kmeclient.OutcomeAuthorizationRejected}
}

// Step is one ETSI 014 call.
type Step struct {
	Op     interfaces.Operation
	As     interfaces.Role
	Target interfaces.SAEID

	// Styles the step is executed in. Status steps always use the query style.
	Styles []interfaces.Style

	// Request is used by enc_keys steps, KeyIDs by dec_keys steps.
	Request interfaces.KeyRequest
	KeyIDs  KeyIDSource

	Expect Expect
}

func (s Step) styles() []interfaces.Style {
	if s.Op == interfaces.OpStatus || len(s.Styles) == 0 {
		return []interfaces.Style{interfaces.QueryStyle}
	}
	return s.Styles
}

// Check verifies a property over the results of a scenario whose steps all
// produced their expected outcome.
type Check struct {
	Name   string
	Verify func(a *Assertions, rec *Record)
}

// Scenario is a named sequence of steps and the checks run after them.
type Scenario struct {
	Name   string
	Family Family
	Steps  []Step
	Checks []Check
}

// StepResult is the result of a step in one style.
type StepResult struct {
	Style      interfaces.Style
	Outcome    kmeclient.Outcome
	StatusCode int
	Keys       *interfaces.KeyContainer
	Status     *interfaces.Status
	Err        error
}

// Record holds the results of every executed step of a scenario.
type Record struct {
	steps [][]StepResult
}

// Results returns the results of a step, one per style, or nil if it did not run.
func (r *Record) Results(step int) []StepResult {
	if step < 0 || step >= len(r.steps) {
		return nil
	}
	return r.steps[step]
}

// Keys returns the key container of the first style of a step.
func (r *Record) Keys(step int) (*interfaces.KeyContainer, bool) {
	results := r.Results(step)
	if len(results) == 0 || results[0].Keys == nil {
		return nil, false
	}
	return results[0].Keys, true
}

// Status returns the status record of a step.
func (r *Record) Status(step int) (*interfaces.Status, bool) {
	results := r.Results(step)
	if len(results) == 0 || results[0].Status == nil {
		return nil, false
	}
	return results[0].Status, true
}

func (r *Record) keyIDs(src KeyIDSource) ([]string, error) {
	if src.literal {
		return src.ids, nil
	}
	keys, ok := r.Keys(src.step)
	if !ok {
		return nil, fmt.Errorf("step %d produced no keys", src.step)
	}
	return keys.IDs(), nil
}
