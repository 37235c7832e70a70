package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding describes a bound parameter value that looks like SQL injection.
type InjectionFinding struct {
	ParamName   string
	ParamValue  any
	Fingerprint string
}

// CheckParameter runs libinjection over a string value.
// Non-string values cannot carry injected SQL and return nil.
func CheckParameter(name string, value any) *InjectionFinding {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionFinding{ParamName: name, ParamValue: value, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckParameters returns findings for every suspicious value, ordered by parameter name.
func CheckParameters(params map[string]any) []*InjectionFinding {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []*InjectionFinding
	for _, name := range names {
		if f := CheckParameter(name, params[name]); f != nil {
			findings = append(findings, f)
		}
	}
	return findings
}
