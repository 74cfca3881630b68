// Package prefs provides the key/value preference store the tour engine
// persists progress into.
//
// The store is owned by the surrounding application; the tour engine only
// ever writes its own (category, user)-scoped keys. Values are always
// strings: decimal step indices or auto-tour status flags.
//
// Key types:
//   - [Store] is the read/write interface the engine depends on
//   - [MemoryStore] is an in-process store, also used as a test fake
//   - [FileStore] persists preferences to a YAML file
//   - [SQLiteStore] persists preferences to a SQLite database
package prefs

import (
	"context"
	"errors"
	"sort"
)

// Preference is one stored key/value pair.
type Preference struct {
	UserID   string `yaml:"user_id" json:"user_id"`
	Category string `yaml:"category" json:"category"`
	Name     string `yaml:"name" json:"name"`
	Value    string `yaml:"value" json:"value"`
}

// Store is the preference store contract.
//
// Get returns the value stored under (category, name) for the store's user
// and whether it exists. Save upserts preferences for userID; the UserID
// field of each preference is overwritten with userID.
type Store interface {
	Get(category, name string) (string, bool)
	Save(ctx context.Context, userID string, prefs []Preference) error
}

// Lister is implemented by stores that can enumerate the preferences of
// their user, ordered by category then name.
type Lister interface {
	List(ctx context.Context) ([]Preference, error)
}

// ErrUserRequired is returned by Save when no user id is given.
var ErrUserRequired = errors.New("preference save requires a user id")

// GetOr returns the stored value or def when the key is absent.
func GetOr(s Store, category, name, def string) string {
	if v, ok := s.Get(category, name); ok {
		return v
	}
	return def
}

func sortPreferences(prefs []Preference) {
	sort.Slice(prefs, func(i, j int) bool {
		if prefs[i].Category != prefs[j].Category {
			return prefs[i].Category < prefs[j].Category
		}
		return prefs[i].Name < prefs[j].Name
	})
}

type key struct {
	category string
	name     string
}
