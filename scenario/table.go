package scenario

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/ruteri/etsi014-conformance/interfaces"
)

var (
	query = interfaces.QueryStyle
	body  = interfaces.BodyStyle
	both  = interfaces.Styles
)

// ambiguousPathStatuses are accepted for path segments the KME cannot resolve:
// the protocol does not tell a malformed id from an unknown one.
var ambiguousPathStatuses = []int{http.StatusBadRequest, http.StatusNotFound}

// DefaultTable returns every conformance scenario with roles resolved through dir.
func DefaultTable(dir Directory) []Scenario {
	master := dir.SAEID(interfaces.RoleMaster)
	slave := dir.SAEID(interfaces.RoleSlave)
	additional := dir.SAEID(interfaces.RoleAdditional)

	var table []Scenario
	table = append(table, happyPath(master, slave)...)
	table = append(table, authorizationIsolation(master, slave)...)
	table = append(table, extendedAuthorization(master, slave, additional)...)
	table = append(table, defaults(master, slave)...)
	table = append(table, protocolEquivalence(slave))
	table = append(table, inputValidation(master, slave, additional)...)
	return table
}

// Filter keeps the scenarios of the given families whose name matches match.
// Empty families and a nil match keep everything.
func Filter(scenarios []Scenario, families []Family, match *regexp.Regexp) []Scenario {
	keep := make(map[Family]bool, len(families))
	for _, f := range families {
		keep[f] = true
	}

	var out []Scenario
	for _, sc := range scenarios {
		if len(keep) > 0 && !keep[sc.Family] {
			continue
		}
		if match != nil && !match.MatchString(sc.Name) {
			continue
		}
		out = append(out, sc)
	}
	return out
}

func issue(target interfaces.SAEID, style interfaces.Style, req interfaces.KeyRequest) Step {
	return Step{
		Op:      interfaces.OpEncKeys,
		As:      interfaces.RoleMaster,
		Target:  target,
		Styles:  []interfaces.Style{style},
		Request: req,
		Expect:  Succeeds(),
	}
}

func retrieve(as interfaces.Role, master interfaces.SAEID, style interfaces.Style, from int, expect Expect) Step {
	return Step{
		Op:     interfaces.OpDecKeys,
		As:     as,
		Target: master,
		Styles: []interfaces.Style{style},
		KeyIDs: FromStep(from),
		Expect: expect,
	}
}

func numbered(n int) interfaces.KeyRequest {
	return interfaces.KeyRequest{Number: interfaces.IntParam(n)}
}

func happyPath(master, slave interfaces.SAEID) []Scenario {
	var out []Scenario
	for _, issueStyle := range both {
		for _, retrieveStyle := range both {
			out = append(out, Scenario{
				Name:   fmt.Sprintf("happy_path/issue=%s/retrieve=%s", issueStyle, retrieveStyle),
				Family: FamilyHappyPath,
				Steps: []Step{
					issue(slave, issueStyle, numbered(1)),
					retrieve(interfaces.RoleSlave, master, retrieveStyle, 0, Succeeds()),
				},
				Checks: []Check{KeyCount(0, 1), RoundTrip(0, 1)},
			})
		}
	}

	// The retrieval lists every issued id; the KME may return them in any order.
	out = append(out, Scenario{
		Name:   "happy_path/multi_key",
		Family: FamilyHappyPath,
		Steps: []Step{
			issue(slave, body, numbered(3)),
			retrieve(interfaces.RoleSlave, master, body, 0, Succeeds()),
		},
		Checks: []Check{KeyCount(0, 3), KeyCount(1, 3), RoundTrip(0, 1)},
	})
	return out
}

func authorizationIsolation(master, slave interfaces.SAEID) []Scenario {
	var out []Scenario
	for _, style := range both {
		out = append(out,
			Scenario{
				Name:   fmt.Sprintf("authorization_isolation/unauthorized/%s", style),
				Family: FamilyAuthorizationIsolation,
				Steps: []Step{
					issue(slave, style, numbered(1)),
					retrieve(interfaces.RoleUnauthorized, master, style, 0, RejectedAsUnauthorized()),
				},
			},
			Scenario{
				// The additional SAE is only authorized when named at issuance.
				Name:   fmt.Sprintf("authorization_isolation/additional_not_named/%s", style),
				Family: FamilyAuthorizationIsolation,
				Steps: []Step{
					issue(slave, style, numbered(1)),
					retrieve(interfaces.RoleAdditional, master, style, 0, RejectedAsUnauthorized()),
				},
			},
		)
	}
	return out
}

func extendedAuthorization(master, slave, additional interfaces.SAEID) []Scenario {
	withAdditional := interfaces.KeyRequest{
		Number:                interfaces.IntParam(1),
		AdditionalSlaveSAEIDs: []interfaces.SAEID{additional},
	}

	var out []Scenario
	for _, style := range both {
		out = append(out, Scenario{
			Name:   fmt.Sprintf("extended_authorization/retrieve=%s", style),
			Family: FamilyExtendedAuthorization,
			Steps: []Step{
				issue(slave, body, withAdditional),
				retrieve(interfaces.RoleAdditional, master, style, 0, Succeeds()),
			},
			Checks: []Check{RoundTrip(0, 1)},
		})
	}

	out = append(out, Scenario{
		Name:   "extended_authorization/with_primary_retriever",
		Family: FamilyExtendedAuthorization,
		Steps: []Step{
			issue(slave, body, withAdditional),
			retrieve(interfaces.RoleAdditional, master, query, 0, Succeeds()),
			retrieve(interfaces.RoleSlave, master, body, 0, Succeeds()),
		},
		Checks: []Check{RoundTrip(0, 1), RoundTrip(0, 2), SameContent(1, 2)},
	})
	return out
}

func defaults(master, slave interfaces.SAEID) []Scenario {
	status := Step{Op: interfaces.OpStatus, As: interfaces.RoleMaster, Target: slave, Expect: Succeeds()}

	var out []Scenario
	for _, style := range both {
		out = append(out,
			Scenario{
				Name:   fmt.Sprintf("defaults/default_values_match_status/%s", style),
				Family: FamilyDefaults,
				Steps: []Step{
					status,
					issue(slave, style, interfaces.KeyRequest{}),
				},
				Checks: []Check{DefaultsMatchStatus(1, 0)},
			},
			Scenario{
				Name:   fmt.Sprintf("defaults/count_fidelity/%s", style),
				Family: FamilyDefaults,
				Steps:  []Step{issue(slave, style, numbered(5))},
				Checks: []Check{KeyCount(0, 5)},
			},
		)
	}

	// Query style asks for a single key, body style for several.
	for _, c := range []struct {
		style interfaces.Style
		n     int
	}{{query, 1}, {body, 3}} {
		out = append(out, Scenario{
			Name:   fmt.Sprintf("defaults/size_fidelity/%s", c.style),
			Family: FamilyDefaults,
			Steps: []Step{
				issue(slave, c.style, interfaces.KeyRequest{Number: interfaces.IntParam(c.n), Size: interfaces.IntParam(1024)}),
			},
			Checks: []Check{KeyCount(0, c.n), KeySize(0, 1024)},
		})
	}

	out = append(out, Scenario{
		Name:   "defaults/status_echoes_sae_ids",
		Family: FamilyDefaults,
		Steps:  []Step{status},
		Checks: []Check{StatusEchoesSAEIDs(0, master, slave)},
	})
	return out
}

func protocolEquivalence(slave interfaces.SAEID) Scenario {
	return Scenario{
		Name:   "protocol_equivalence/enc_keys",
		Family: FamilyProtocolEquivalence,
		Steps: []Step{{
			Op:      interfaces.OpEncKeys,
			As:      interfaces.RoleMaster,
			Target:  slave,
			Styles:  both,
			Request: interfaces.KeyRequest{Number: interfaces.IntParam(2), Size: interfaces.IntParam(256)},
			Expect:  Succeeds(),
		}},
		Checks: []Check{KeyCount(0, 2), KeySize(0, 256)},
	}
}

var malformedParams = []struct {
	name  string
	value interfaces.Param
}{
	{"zero", "0"},
	{"negative", "-8"},
	{"alphanumeric", "abc01"},
}

func inputValidation(master, slave, additional interfaces.SAEID) []Scenario {
	var out []Scenario
	reject := func(name string, step Step) {
		out = append(out, Scenario{Name: "input_validation/" + name, Family: FamilyInputValidation, Steps: []Step{step}})
	}

	for _, p := range malformedParams {
		reject("size/"+p.name, Step{
			Op: interfaces.OpEncKeys, As: interfaces.RoleMaster, Target: slave, Styles: both,
			Request: interfaces.KeyRequest{Size: p.value},
			Expect:  RejectedAsInvalid(http.StatusBadRequest),
		})
		reject("number/"+p.name, Step{
			Op: interfaces.OpEncKeys, As: interfaces.RoleMaster, Target: slave, Styles: both,
			Request: interfaces.KeyRequest{Number: p.value},
			Expect:  RejectedAsInvalid(),
		})
	}

	for _, c := range []struct {
		name string
		ids  []interfaces.SAEID
	}{
		{"blank_entry", []interfaces.SAEID{additional, " "}},
		{"duplicate_entry", []interfaces.SAEID{additional, additional}},
		{"slave_sae_id", []interfaces.SAEID{slave}},
		{"master_sae_id", []interfaces.SAEID{master}},
		{"empty_list", []interfaces.SAEID{}},
	} {
		reject("additional_sae_ids/"+c.name, Step{
			Op: interfaces.OpEncKeys, As: interfaces.RoleMaster, Target: slave,
			Styles:  []interfaces.Style{body},
			Request: interfaces.KeyRequest{AdditionalSlaveSAEIDs: c.ids},
			Expect:  RejectedAsInvalid(),
		})
	}

	sampleKeyID := uuid.NewString()
	for _, path := range []struct {
		name   string
		target interfaces.SAEID
	}{
		{"blank_sae_id_in_path", " "},
		{"identical_sae_ids", master},
	} {
		reject(path.name+"/enc_keys", Step{
			Op: interfaces.OpEncKeys, As: interfaces.RoleMaster, Target: path.target, Styles: both,
			Expect: RejectedAsInvalid(ambiguousPathStatuses...),
		})
		reject(path.name+"/dec_keys", Step{
			Op: interfaces.OpDecKeys, As: interfaces.RoleMaster, Target: path.target, Styles: both,
			KeyIDs: KeyIDs(sampleKeyID),
			Expect: RejectedAsInvalid(ambiguousPathStatuses...),
		})
	}

	reject("non_uuid_key_id", Step{
		Op: interfaces.OpDecKeys, As: interfaces.RoleSlave, Target: master, Styles: both,
		KeyIDs: KeyIDs("non-uuid"),
		Expect: RejectedAsInvalid(http.StatusBadRequest),
	})
	return out
}
