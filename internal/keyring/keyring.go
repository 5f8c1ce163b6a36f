package keyring

import (
	"fmt"
	"os"

	zkr "github.com/zalando/go-keyring"
)

const serviceName = "lavis"

// Get retrieves a stored secret (e.g. a provider API key) from the OS keychain.
func Get(account string) (string, error) {
	val, err := zkr.Get(serviceName, account)
	if err != nil {
		return "", fmt.Errorf("keychain get %s: %w", account, err)
	}
	return val, nil
}

// Set stores a secret in the OS keychain.
func Set(account, value string) error {
	return zkr.Set(serviceName, account, value)
}

// Delete removes a secret from the OS keychain.
func Delete(account string) error {
	return zkr.Delete(serviceName, account)
}

// Available returns true if the OS keychain is functional.
// Returns false if LAVIS_KEYRING_DISABLED=1 is set (headless/CI/Docker).
// Otherwise probes the keychain with a test write/delete cycle.
func Available() bool {
	if os.Getenv("LAVIS_KEYRING_DISABLED") == "1" {
		return false
	}
	testService := "lavis-keyring-probe"
	if err := zkr.Set(testService, "probe", "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, "probe")
	return true
}
