// Package env holds process-level constants and lookup tables, in the
// teacher's style (B2BClientChannelIDsIndex): small, fixed tables consulted
// by the binding layer, never by core dispatch logic.
package env

import "github.com/edirooss/crdtstore/pkg/storekind"

// StoreKindLabel names a registered store kind postfix for logs and the
// admin surface. Core dispatch never goes through this table — it always
// holds a direct storekind.Kind reference (spec §4.2/§9); this exists only
// so a human (or a URL path segment) can say "2" and mean "reactions".
type StoreKindLabel struct {
	Postfix byte
	Name    string
}

// StoreKinds is the fixed set of store kinds this binary knows how to
// construct and register with a store.Store.
var StoreKinds = []StoreKindLabel{
	{Postfix: 1, Name: "casts"},
	{Postfix: 2, Name: "reactions"},
	{Postfix: 3, Name: "links"},
	{Postfix: 4, Name: "user_data"},
}

// NewStoreKinds constructs one instance of every registered store kind, in
// StoreKinds order, ready to pass to store.New.
func NewStoreKinds() []storekind.Kind {
	return []storekind.Kind{
		storekind.NewCastStore(),
		storekind.NewReactionStore(),
		storekind.NewLinkStore(),
		storekind.NewUserDataStore(),
	}
}

// Lookup returns the label for postfix, if registered.
func Lookup(postfix byte) (StoreKindLabel, bool) {
	for _, l := range StoreKinds {
		if l.Postfix == postfix {
			return l, true
		}
	}
	return StoreKindLabel{}, false
}

// LookupName returns the postfix registered under name.
func LookupName(name string) (byte, bool) {
	for _, l := range StoreKinds {
		if l.Name == name {
			return l.Postfix, true
		}
	}
	return 0, false
}
