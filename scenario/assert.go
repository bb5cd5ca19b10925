package scenario

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
)

// Assertions records testify assertion failures for one scenario instead of
// failing a test. It implements assert.TestingT.
type Assertions struct {
	mu       sync.Mutex
	failures []string
}

var _ assert.TestingT = (*Assertions)(nil)

func NewAssertions() *Assertions {
	return &Assertions{}
}

func (a *Assertions) Errorf(format string, args ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Failed reports whether any assertion failed.
func (a *Assertions) Failed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failures) > 0
}

// Failures returns the recorded failure messages.
func (a *Assertions) Failures() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.failures...)
}

func (a *Assertions) Equal(expected, actual interface{}, msgAndArgs ...interface{}) bool {
	return assert.Equal(a, expected, actual, msgAndArgs...)
}

func (a *Assertions) Contains(s, contains interface{}, msgAndArgs ...interface{}) bool {
	return assert.Contains(a, s, contains, msgAndArgs...)
}

func (a *Assertions) Len(object interface{}, length int, msgAndArgs ...interface{}) bool {
	return assert.Len(a, object, length, msgAndArgs...)
}

func (a *Assertions) True(value bool, msgAndArgs ...interface{}) bool {
	return assert.True(a, value, msgAndArgs...)
}

func (a *Assertions) NoError(err error, msgAndArgs ...interface{}) bool {
	return assert.NoError(a, err, msgAndArgs...)
}

func (a *Assertions) NotEmpty(object interface{}, msgAndArgs ...interface{}) bool {
	return assert.NotEmpty(a, object, msgAndArgs...)
}

func (a *Assertions) Positive(e interface{}, msgAndArgs ...interface{}) bool {
	return assert.Positive(a, e, msgAndArgs...)
}

// Fail records a failure with a plain message.
func (a *Assertions) Fail(failure string, msgAndArgs ...interface{}) bool {
	return assert.Fail(a, failure, msgAndArgs...)
}

// DecodedLen asserts that encoded is standard base64 decoding to want bytes.
func (a *Assertions) DecodedLen(encoded string, want int, msgAndArgs ...interface{}) bool {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if !a.NoError(err, msgAndArgs...) {
		return false
	}
	return a.Equal(want, len(decoded), msgAndArgs...)
}

// DecodedSizes returns the size in bits of every key, or -1 for keys that are
// not valid base64.
func DecodedSizes(keys []string) []int {
	sizes := make([]int, 0, len(keys))
	for _, k := range keys {
		decoded, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			sizes = append(sizes, -1)
			continue
		}
		sizes = append(sizes, 8*len(decoded))
	}
	return sizes
}
