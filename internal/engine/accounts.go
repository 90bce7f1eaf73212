package engine

import (
	"fmt"
	"os/user"
)

// AccountLookup resolves OS users and groups for templates.
type AccountLookup interface {
	CurrentUser() (string, error)
	PrimaryGroup(username string) (string, error)
}

// SystemAccounts resolves accounts through the host's user database.
type SystemAccounts struct{}

// CurrentUser returns the name of the invoking user.
func (SystemAccounts) CurrentUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("looking up current user: %w", err)
	}
	return u.Username, nil
}

// PrimaryGroup returns the name of username's primary group.
func (SystemAccounts) PrimaryGroup(username string) (string, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return "", fmt.Errorf("looking up user %q: %w", username, err)
	}
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		return "", fmt.Errorf("looking up primary group of %q: %w", username, err)
	}
	return g.Name, nil
}
