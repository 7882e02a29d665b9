package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a directive value that tripped the injection
// scanner.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // Directive or bind name that failed the check
	Value       any    // The value that was checked
}

// CheckValue scans one user-supplied value (a feedback directive value that is
// about to become a bind) for SQL injection patterns.
//
// Only string values are checked; numbers, booleans and dates cannot carry an
// injection payload and return nil. Returns nil when the value is clean.
func CheckValue(name string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Name:        name,
			Value:       value,
		}
	}
	return nil
}

// CheckBinds scans a whole bind table and returns one result per dirty entry.
// An empty slice means every bind is clean.
func CheckBinds(binds map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range binds {
		if result := CheckValue(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
