package main

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/horgh/cinder/internal/auth"
)

// fileAccounts is an auth.AccountFinder backed by a flat YAML mapping
// of account name to bcrypt hash, the file named by
// config.SASLConfig.CredentialsFile. Grounded on internal/config's
// own YAML-via-yaml.v2 convention; kept separate from internal/config
// since it's a runtime lookup table, not server configuration.
type fileAccounts map[string]string

func loadAccounts(path string) (fileAccounts, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading credentials file")
	}

	accounts := fileAccounts{}
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return nil, errors.Wrap(err, "parsing credentials file")
	}
	return accounts, nil
}

func (a fileAccounts) FindAccount(account string) (string, bool) {
	hash, ok := a[account]
	return hash, ok
}

// buildAuthProvider selects the SASL backend per SASLConfig.Backend:
// "" or "none" disables SASL (auth.Dummy), "file" loads a bcrypt
// credentials file.
func buildAuthProvider(backend, credentialsFile string) (auth.Provider, error) {
	switch backend {
	case "", "none":
		return auth.Dummy{}, nil
	case "file":
		accounts, err := loadAccounts(credentialsFile)
		if err != nil {
			return nil, err
		}
		return &auth.CredentialStore{Accounts: accounts}, nil
	default:
		return nil, errors.Errorf("unknown sasl backend %q", backend)
	}
}
