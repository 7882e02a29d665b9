package models

// ValueMatch is the result of resolving a raw enum value against the synonym
// table. When no rule matches, Matched is false and Contains carries the raw
// value so the caller degrades to a literal substring match instead of
// failing.
type ValueMatch struct {
	Category string   `json:"category,omitempty"`
	Matched  bool     `json:"matched"`
	Equals   []string `json:"equals,omitempty"`
	Prefix   []string `json:"prefix,omitempty"`
	Contains []string `json:"contains,omitempty"`
}
