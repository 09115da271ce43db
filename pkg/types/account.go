package types

import "time"

// Account identifies one configured trading identity. Credential material
// lives in a sibling setup.json file (0o600), never on this struct, so
// Account itself is safe to log or return over the HTTP surface.
type Account struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultAccountID is the account that always exists and cannot be removed
// while it is the only remaining account.
const DefaultAccountID = "default"

// AccountSetup is the persisted (0o600) credential material for an account.
type AccountSetup struct {
	PrivateKeyHex string `json:"privateKeyHex"`
	ProxyAddress  string `json:"proxyAddress,omitempty"`
	SignatureType int    `json:"signatureType"` // 0=EOA, 1=POLY_PROXY, 2=GNOSIS_SAFE
}
