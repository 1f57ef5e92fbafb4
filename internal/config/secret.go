package config

import "encoding/json"

const redactedSecret = "[REDACTED]"

// Secret holds a credential such as a provider API key. Every formatting
// and marshalling path prints a placeholder; only Value returns the key.
type Secret string

func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if !s.IsSet() {
		return ""
	}
	return redactedSecret
}

func (s Secret) GoString() string { return "Secret(" + redactedSecret + ")" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
