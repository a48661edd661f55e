//go:build !windows

package config

import "errors"

// LoadConfigFromCSP is only available on Windows, where enterprise policy
// can be delivered via CSP OMA-URI registry settings.
func LoadConfigFromCSP() (*Configuration, error) {
	return nil, errors.New("CSP configuration is only supported on windows")
}
