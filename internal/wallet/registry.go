package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Wallet is a custodial keypair controlling one on-chain account on behalf
// of a chat user. Held in process memory only and never persisted.
type Wallet struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// Registry stores one wallet per user for the process lifetime. A user's
// wallet is created lazily on first contact and never rotated.
type Registry struct {
	mu      sync.RWMutex
	wallets map[int64]*Wallet
	logger  *logrus.Logger
}

// NewRegistry creates an empty in-memory wallet registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		wallets: make(map[int64]*Wallet),
		logger:  logger,
	}
}

// GetOrCreate returns the user's wallet, generating one on first contact.
// The returned bool reports whether the wallet was created by this call.
// Creation is idempotent under concurrent first contact: key generation
// happens outside the critical section, but only the first insert wins and
// every caller observes the same stored wallet afterwards.
func (r *Registry) GetOrCreate(userID int64) (*Wallet, bool, error) {
	r.mu.RLock()
	w, ok := r.wallets[userID]
	r.mu.RUnlock()
	if ok {
		return w, false, nil
	}

	// Keys always come from crypto/rand via secp256k1; no passphrase or
	// seed material is ever mixed in.
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate keypair: %w", err)
	}
	fresh := &Wallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}

	r.mu.Lock()
	if existing, ok := r.wallets[userID]; ok {
		// Lost the race: another first-contact event already stored a
		// wallet for this user. Discard ours, keep theirs.
		r.mu.Unlock()
		return existing, false, nil
	}
	r.wallets[userID] = fresh
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"address": fresh.Address.Hex(),
	}).Info("created wallet for new user")

	return fresh, true, nil
}

// Get returns the user's wallet if one exists.
func (r *Registry) Get(userID int64) (*Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	return w, ok
}

// Count reports how many wallets the registry holds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}
