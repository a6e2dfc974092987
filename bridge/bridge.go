// Package bridge declares the boundary contracts this client consumes
// from the host application: federation credentials and the ecash payment
// engine. Implementations live outside this module.
package bridge

import "context"

// Credentials are the per-federation secrets the client authenticates
// and derives its encryption keys from.
type Credentials struct {
	Username    string
	Password    string
	KeypairSeed string
}

// CredentialEngine supplies and backs up federation credentials.
type CredentialEngine interface {
	// GetCredentials returns the credentials for a federation.
	GetCredentials(ctx context.Context, federationID string) (Credentials, error)

	// BackupUsername records the chat username with the federation's
	// recovery backup.
	BackupUsername(ctx context.Context, username, federationID string) error
}

// PaymentEngine executes ecash operations for in-chat payments. Only the
// message-lifecycle effects are in scope here; the monetary mechanics are
// the engine's concern.
type PaymentEngine interface {
	// GenerateEcash mints a token for the given amount.
	GenerateEcash(ctx context.Context, amount uint64, federationID string) (string, error)

	// ReceiveEcash redeems a token. Redeeming an already-redeemed token
	// must be reported with an error the caller can classify via
	// IsAlreadyRedeemed.
	ReceiveEcash(ctx context.Context, token, federationID string) error

	// CancelEcash reclaims a previously minted, unredeemed token.
	CancelEcash(ctx context.Context, token, federationID string) error

	// IsAlreadyRedeemed classifies a ReceiveEcash error as the
	// idempotent already-redeemed case.
	IsAlreadyRedeemed(err error) bool
}

// Engine is the combined boundary the client is constructed with.
type Engine interface {
	CredentialEngine
	PaymentEngine
}
