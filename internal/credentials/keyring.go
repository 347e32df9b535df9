package credentials

import (
	"fmt"
	"os"
	"runtime"

	"github.com/99designs/keyring"
)

// ServiceName namespaces our entries in the OS credential store.
const ServiceName = "sqlrunner"

// PasswordEnv supplies the passphrase for the encrypted file backend.
const PasswordEnv = "SQLRUNNER_KEYRING_PASSWORD"

// RingOptions select the keyring backend.
type RingOptions struct {
	// Backend forces a single backend ("file", "keychain", "wincred", "secret-service", "kwallet", "pass").
	Backend string
	// FileDir is where the file backend keeps its encrypted items.
	FileDir string
}

// OpenRing opens the platform keyring, falling back to the encrypted file
// backend when no native store is available.
func OpenRing(opts RingOptions) (keyring.Keyring, error) {
	allowed := platformBackends()
	if opts.Backend != "" {
		allowed = []keyring.BackendType{keyring.BackendType(opts.Backend)}
	}

	cfg := keyring.Config{
		ServiceName:      ServiceName,
		AllowedBackends:  allowed,
		PassPrefix:       ServiceName,
		FileDir:          opts.FileDir,
		FilePasswordFunc: filePassword,
	}
	if runtime.GOOS == "windows" {
		cfg.WinCredPrefix = ServiceName
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

func platformBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend, keyring.FileBackend}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend, keyring.FileBackend}
	default:
		return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend, keyring.FileBackend}
	}
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	return "", fmt.Errorf("%s: set %s to unlock the file keyring", prompt, PasswordEnv)
}
