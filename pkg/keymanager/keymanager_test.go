/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keymanager

import (
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"strings"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/trustbloc/badgevc/pkg/models"
	issuerstore "github.com/trustbloc/badgevc/pkg/store/issuer"
	"github.com/trustbloc/badgevc/pkg/vcerrors"
)

func TestGenerateKeyPair(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		keyManager := New(newIssuerStore(t))

		keyPair, err := keyManager.GenerateKeyPair()
		require.NoError(t, err)

		block, _ := pem.Decode(keyPair.PrivateKeyPEM)
		require.NotNil(t, block)
		require.Equal(t, "PRIVATE KEY", block.Type)

		require.Len(t, keyPair.PublicKey, ed25519.PublicKeySize)
		require.True(t, strings.HasPrefix(keyPair.PublicKeyID, "did:key:z6Mk"))
		require.Contains(t, keyPair.PublicKeyID, "#")

		privKey, err := keyManager.PrivateKey(keyPair.PrivateKeyPEM)
		require.NoError(t, err)
		require.Equal(t, keyPair.PublicKey, privKey.Public())
	})
	t.Run("Success - two generated keys differ", func(t *testing.T) {
		keyManager := New(newIssuerStore(t))

		keyPair1, err := keyManager.GenerateKeyPair()
		require.NoError(t, err)

		keyPair2, err := keyManager.GenerateKeyPair()
		require.NoError(t, err)

		require.NotEqual(t, keyPair1.PrivateKeyPEM, keyPair2.PrivateKeyPEM)
		require.NotEqual(t, keyPair1.PublicKeyID, keyPair2.PublicKeyID)
	})
	t.Run("Failure - entropy failure is a key generation error", func(t *testing.T) {
		keyManager := New(newIssuerStore(t))
		keyManager.generateEd25519 = func() (ed25519.PublicKey, ed25519.PrivateKey, error) {
			return nil, nil, errors.New("entropy exhausted")
		}

		keyPair, err := keyManager.GenerateKeyPair()
		require.Error(t, err)
		require.True(t, vcerrors.IsKeyGeneration(err))
		require.Nil(t, keyPair)
	})
}

func TestPassphraseProtection(t *testing.T) {
	const passphrase = "server-held secret"

	t.Run("Success - encrypt and decrypt round trip", func(t *testing.T) {
		keyManager := New(newIssuerStore(t), WithPassphrase(passphrase))

		keyPair, err := keyManager.GenerateKeyPair()
		require.NoError(t, err)

		block, _ := pem.Decode(keyPair.PrivateKeyPEM)
		require.NotNil(t, block)
		require.Equal(t, "ENCRYPTED PRIVATE KEY", block.Type)

		privKey, err := keyManager.PrivateKey(keyPair.PrivateKeyPEM)
		require.NoError(t, err)
		require.Equal(t, keyPair.PublicKey, privKey.Public())
	})
	t.Run("Failure - no passphrase configured", func(t *testing.T) {
		protectedManager := New(newIssuerStore(t), WithPassphrase(passphrase))

		keyPair, err := protectedManager.GenerateKeyPair()
		require.NoError(t, err)

		plainManager := New(newIssuerStore(t))

		privKey, err := plainManager.PrivateKey(keyPair.PrivateKeyPEM)
		require.Error(t, err)
		require.True(t, vcerrors.IsSigning(err))
		require.Nil(t, privKey)
	})
	t.Run("Failure - wrong passphrase", func(t *testing.T) {
		protectedManager := New(newIssuerStore(t), WithPassphrase(passphrase))

		keyPair, err := protectedManager.GenerateKeyPair()
		require.NoError(t, err)

		wrongManager := New(newIssuerStore(t), WithPassphrase("not the passphrase"))

		privKey, err := wrongManager.PrivateKey(keyPair.PrivateKeyPEM)
		require.Error(t, err)
		require.True(t, vcerrors.IsSigning(err))
		require.Nil(t, privKey)
	})
}

func TestPrivateKey(t *testing.T) {
	t.Run("Failure - not PEM", func(t *testing.T) {
		keyManager := New(newIssuerStore(t))

		privKey, err := keyManager.PrivateKey([]byte("not a pem"))
		require.Error(t, err)
		require.True(t, vcerrors.IsSigning(err))
		require.Nil(t, privKey)
	})
	t.Run("Failure - PEM holds something other than PKCS#8", func(t *testing.T) {
		keyManager := New(newIssuerStore(t))

		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("garbage")})

		privKey, err := keyManager.PrivateKey(pemBytes)
		require.Error(t, err)
		require.True(t, vcerrors.IsSigning(err))
		require.Nil(t, privKey)
	})
}

func TestRotateKey(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		store := newIssuerStore(t)
		keyManager := New(store)

		original, err := keyManager.GenerateKeyPair()
		require.NoError(t, err)

		require.NoError(t, store.Put(&models.Issuer{
			ID:            "issuer-1",
			Name:          "Example University",
			URL:           "https://example.edu",
			PublicKeyID:   original.PublicKeyID,
			PrivateKeyPEM: original.PrivateKeyPEM,
		}))

		rotated, err := keyManager.RotateKey("issuer-1")
		require.NoError(t, err)
		require.NotEqual(t, original.PrivateKeyPEM, rotated.PrivateKeyPEM)
		require.NotEqual(t, original.PublicKeyID, rotated.PublicKeyID)

		stored, err := store.Get("issuer-1")
		require.NoError(t, err)
		require.Equal(t, rotated.PrivateKeyPEM, stored.PrivateKeyPEM)
		require.Equal(t, rotated.PublicKeyID, stored.PublicKeyID)
	})
	t.Run("Failure - unknown issuer", func(t *testing.T) {
		keyManager := New(newIssuerStore(t))

		rotated, err := keyManager.RotateKey("no-such-issuer")
		require.Error(t, err)
		require.True(t, errors.Is(err, vcerrors.ErrIssuerNotFound))
		require.Nil(t, rotated)
	})
}

func TestFindDuplicateKeys(t *testing.T) {
	t.Run("Success - one duplicate group, unique issuer excluded", func(t *testing.T) {
		store := newIssuerStore(t)
		keyManager := New(store)

		shared, err := keyManager.GenerateKeyPair()
		require.NoError(t, err)

		unique, err := keyManager.GenerateKeyPair()
		require.NoError(t, err)

		for _, issuer := range []*models.Issuer{
			{ID: "issuer-b", Name: "B", URL: "https://b.example.edu", PrivateKeyPEM: shared.PrivateKeyPEM},
			{ID: "issuer-a", Name: "A", URL: "https://a.example.edu", PrivateKeyPEM: shared.PrivateKeyPEM},
			{ID: "issuer-c", Name: "C", URL: "https://c.example.edu", PrivateKeyPEM: unique.PrivateKeyPEM},
		} {
			require.NoError(t, store.Put(issuer))
		}

		duplicates, err := keyManager.FindDuplicateKeys()
		require.NoError(t, err)
		require.Len(t, duplicates, 1)

		group, ok := duplicates[KeyFingerprint(shared.PrivateKeyPEM)]
		require.True(t, ok)
		require.Equal(t, []string{"issuer-a", "issuer-b"}, group)
	})
	t.Run("Success - no duplicates", func(t *testing.T) {
		store := newIssuerStore(t)
		keyManager := New(store)

		for _, id := range []string{"issuer-1", "issuer-2"} {
			keyPair, err := keyManager.GenerateKeyPair()
			require.NoError(t, err)

			require.NoError(t, store.Put(&models.Issuer{
				ID: id, Name: id, URL: "https://example.edu/" + id, PrivateKeyPEM: keyPair.PrivateKeyPEM,
			}))
		}

		duplicates, err := keyManager.FindDuplicateKeys()
		require.NoError(t, err)
		require.Empty(t, duplicates)
	})
	t.Run("Success - issuers without key material are skipped", func(t *testing.T) {
		store := newIssuerStore(t)
		keyManager := New(store)

		require.NoError(t, store.Put(&models.Issuer{ID: "issuer-1", Name: "1", URL: "https://example.edu/1"}))
		require.NoError(t, store.Put(&models.Issuer{ID: "issuer-2", Name: "2", URL: "https://example.edu/2"}))

		duplicates, err := keyManager.FindDuplicateKeys()
		require.NoError(t, err)
		require.Empty(t, duplicates)
	})
}

func newIssuerStore(t *testing.T) *issuerstore.Store {
	t.Helper()

	store, err := issuerstore.New(mem.NewProvider())
	require.NoError(t, err)

	return store
}
