package scenario

import (
	"fmt"

	"github.com/ruteri/etsi014-conformance/interfaces"
)

// RoundTrip checks that the keys retrieved in one step are exactly the keys
// issued in another, by id and material, ignoring order.
func RoundTrip(issue, retrieve int) Check {
	return Check{
		Name: fmt.Sprintf("round trip of step %d through step %d", issue, retrieve),
		Verify: func(a *Assertions, rec *Record) {
			sameKeys(a, rec, issue, retrieve)
		},
	}
}

// SameContent checks that two steps returned the same keys.
func SameContent(first, second int) Check {
	return Check{
		Name: fmt.Sprintf("steps %d and %d return the same keys", first, second),
		Verify: func(a *Assertions, rec *Record) {
			sameKeys(a, rec, first, second)
		},
	}
}

func sameKeys(a *Assertions, rec *Record, first, second int) {
	x, okX := rec.Keys(first)
	y, okY := rec.Keys(second)
	if !a.True(okX && okY, "steps %d and %d must both return keys", first, second) {
		return
	}
	a.Len(y.Keys, len(x.Keys), "step %d returned a different number of keys than step %d", second, first)
	a.Equal(x.ByID(), y.ByID(), "keys of step %d differ from keys of step %d", second, first)
}

// KeyCount checks the number of keys returned by a step in every style.
func KeyCount(step, n int) Check {
	return Check{
		Name: fmt.Sprintf("step %d returns %d keys", step, n),
		Verify: func(a *Assertions, rec *Record) {
			for _, res := range rec.Results(step) {
				if !a.True(res.Keys != nil, "step %d (%s style) returned no keys", step, res.Style) {
					continue
				}
				a.Len(res.Keys.Keys, n, "step %d (%s style)", step, res.Style)
			}
		},
	}
}

// KeySize checks that every key returned by a step in every style decodes to
// bits/8 bytes.
func KeySize(step, bits int) Check {
	return Check{
		Name: fmt.Sprintf("keys of step %d are %d bits", step, bits),
		Verify: func(a *Assertions, rec *Record) {
			for _, res := range rec.Results(step) {
				if !a.True(res.Keys != nil, "step %d (%s style) returned no keys", step, res.Style) {
					continue
				}
				for _, k := range res.Keys.Keys {
					a.DecodedLen(k.Key, bits/8, "step %d (%s style) key %s", step, res.Style, k.KeyID)
				}
			}
		},
	}
}

// DefaultsMatchStatus checks that a request without number and size returned a
// single key of the default size reported by status.
func DefaultsMatchStatus(issue, status int) Check {
	return Check{
		Name: fmt.Sprintf("defaults of step %d match status of step %d", issue, status),
		Verify: func(a *Assertions, rec *Record) {
			st, ok := rec.Status(status)
			if !a.True(ok, "step %d returned no status", status) {
				return
			}
			a.Positive(st.KeySize, "status key_size")
			for _, res := range rec.Results(issue) {
				if !a.True(res.Keys != nil, "step %d (%s style) returned no keys", issue, res.Style) {
					continue
				}
				if !a.Len(res.Keys.Keys, 1, "default number of keys (%s style)", res.Style) {
					continue
				}
				a.DecodedLen(res.Keys.Keys[0].Key, st.KeySize/8, "default key size (%s style) against status key_size %d", res.Style, st.KeySize)
			}
		},
	}
}

// StatusEchoesSAEIDs checks the SAE ids reported by a status step.
func StatusEchoesSAEIDs(step int, master, slave interfaces.SAEID) Check {
	return Check{
		Name: fmt.Sprintf("status of step %d names %s and %s", step, master, slave),
		Verify: func(a *Assertions, rec *Record) {
			st, ok := rec.Status(step)
			if !a.True(ok, "step %d returned no status", step) {
				return
			}
			a.Equal(master, st.MasterSAEID, "master_SAE_ID")
			a.Equal(slave, st.SlaveSAEID, "slave_SAE_ID")
		},
	}
}
