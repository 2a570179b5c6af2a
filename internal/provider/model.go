package provider

import "time"

// AccessToken is a bearer token valid for one verification attempt.
type AccessToken struct {
	Value  string
	Expiry time.Time
}

// Check identifies a pending subscriber check on the provider.
type Check struct {
	ID  string
	URL string
	// AccessToken is set when the check was created through the broker, which
	// acquires the token server-side.
	AccessToken string
}

// Result is the provider's final answer for a check.
type Result struct {
	Match       bool `json:"match"`
	NoSimChange bool `json:"no_sim_change"`
}

// Passed reports whether the number matched and the SIM did not change.
func (r Result) Passed() bool {
	return r.Match && r.NoSimChange
}
