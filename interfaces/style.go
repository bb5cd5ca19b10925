package interfaces

import (
	"fmt"
	"net/http"
)

// Style selects one of the two wire encodings of an ETSI 014 request.
// The zero value is QueryStyle; BodyStyle is the only other value.
type Style struct {
	body bool
}

var (
	// QueryStyle sends parameters in the query string of a GET request.
	QueryStyle = Style{}
	// BodyStyle sends parameters as a JSON body of a POST request.
	BodyStyle = Style{body: true}
)

// Styles lists both protocol styles.
var Styles = []Style{QueryStyle, BodyStyle}

func (s Style) String() string {
	if s.body {
		return "body"
	}
	return "query"
}

// Method returns the HTTP method used by the style.
func (s Style) Method() string {
	if s.body {
		return http.MethodPost
	}
	return http.MethodGet
}

// IsBody reports whether the style carries a JSON body.
func (s Style) IsBody() bool {
	return s.body
}

// ParseStyle accepts "query"/"get" and "body"/"post".
func ParseStyle(v string) (Style, error) {
	switch v {
	case "query", "get", "GET":
		return QueryStyle, nil
	case "body", "post", "POST":
		return BodyStyle, nil
	default:
		return Style{}, fmt.Errorf("unknown protocol style %q", v)
	}
}

func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
