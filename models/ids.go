package models

// SessionID is the identifier issued by the auth layer for the current
// login. ProfileID is the primary key of a durable profile record. They
// must be equal after reconciliation, but are kept as distinct types so
// the conversion happens in exactly one audited place (the identity
// service) instead of being assumed everywhere a string is passed around.
type SessionID string

// ProfileID keys a profile document in the durable store and every
// per-user tree in the ephemeral store.
type ProfileID string

func (s SessionID) String() string { return string(s) }

func (p ProfileID) String() string { return string(p) }
