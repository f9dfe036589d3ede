/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keymanager

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/pkg/vdr/fingerprint"
	jose "github.com/square/go-jose/v3"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/badgevc/pkg/models"
	"github.com/trustbloc/badgevc/pkg/vcerrors"
)

const logModuleName = "badgevc-keymanager"

var logger = log.New(logModuleName)

const (
	pemTypePrivateKey = "PRIVATE KEY"
	// pemTypeEncryptedPrivateKey holds a compact JWE of the PKCS#8 PEM,
	// produced with the server-held passphrase (PBES2).
	pemTypeEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
)

type generateEd25519Func func() (ed25519.PublicKey, ed25519.PrivateKey, error)

// IssuerStore is the issuer persistence collaborator. The key manager never manages
// transactions itself; rotation must be wrapped in a transaction boundary by the caller.
type IssuerStore interface {
	Get(issuerID string) (*models.Issuer, error)
	Put(issuer *models.Issuer) error
	GetAll() ([]models.Issuer, error)
}

type options struct {
	passphrase string
}

// Option configures the key manager.
type Option func(opts *options)

// WithPassphrase sets the server-held secret used to protect private-key PEMs at rest.
// When set, generated PEMs are wrapped in a password-based JWE.
func WithPassphrase(passphrase string) Option {
	return func(opts *options) {
		opts.passphrase = passphrase
	}
}

// KeyManager generates, stores and retrieves per-issuer Ed25519 key material
// and detects key collisions across issuers.
type KeyManager struct {
	store           IssuerStore
	passphrase      string
	generateEd25519 generateEd25519Func
}

// New returns a new key manager backed by the given issuer store.
func New(store IssuerStore, opts ...Option) *KeyManager {
	options := &options{}

	for _, opt := range opts {
		opt(options)
	}

	return &KeyManager{
		store:      store,
		passphrase: options.passphrase,
		generateEd25519: func() (ed25519.PublicKey, ed25519.PrivateKey, error) {
			return ed25519.GenerateKey(rand.Reader)
		},
	}
}

// GenerateKeyPair produces a fresh Ed25519 key pair. The private key is serialized
// as PKCS#8 PEM and, if a passphrase is configured, wrapped in a password-based JWE.
// The public key identifier is a did:key verification method.
func (k *KeyManager) GenerateKeyPair() (*models.IssuerKeyPair, error) {
	pubKey, privKey, err := k.generateEd25519()
	if err != nil {
		return nil, vcerrors.NewKeyGeneration(err)
	}

	pkcs8Bytes, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return nil, vcerrors.NewKeyGeneration(fmt.Errorf("failed to marshal private key: %w", err))
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: pkcs8Bytes})

	if k.passphrase != "" {
		pemBytes, err = k.encryptPEM(pemBytes)
		if err != nil {
			return nil, vcerrors.NewKeyGeneration(err)
		}
	}

	_, keyID := fingerprint.CreateDIDKey(pubKey)

	return &models.IssuerKeyPair{
		PrivateKeyPEM: pemBytes,
		PublicKey:     pubKey,
		PublicKeyID:   keyID,
	}, nil
}

// RotateKey replaces the issuer's key material with a freshly generated pair and
// writes the updated issuer record back through the issuer store. Persistence
// atomicity and any downstream rebaking are the caller's responsibility.
func (k *KeyManager) RotateKey(issuerID string) (*models.Issuer, error) {
	issuer, err := k.store.Get(issuerID)
	if err != nil {
		return nil, err
	}

	keyPair, err := k.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	issuer.PrivateKeyPEM = keyPair.PrivateKeyPEM
	issuer.PublicKeyID = keyPair.PublicKeyID

	if err := k.store.Put(issuer); err != nil {
		return nil, fmt.Errorf("failed to store rotated key for issuer %s: %w", issuerID, err)
	}

	logger.Infof("rotated key for issuer %s, new verification method %s", issuerID, issuer.PublicKeyID)

	return issuer, nil
}

// FindDuplicateKeys scans all issuer key material in a single pass, grouping by a
// fingerprint of the exact private key bytes, and returns the groups with more than
// one member as fingerprint -> sorted issuer IDs.
//
// Byte-equal key material across issuers is treated as a corruption condition.
// A coincidental collision of independently generated Ed25519 keys is possible in
// principle but is so improbable that any group returned here should be assumed
// to be a duplication bug.
func (k *KeyManager) FindDuplicateKeys() (map[string][]string, error) {
	issuers, err := k.store.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read issuers: %w", err)
	}

	groups := make(map[string][]string)

	for i := range issuers {
		if len(issuers[i].PrivateKeyPEM) == 0 {
			continue
		}

		fp := KeyFingerprint(issuers[i].PrivateKeyPEM)
		groups[fp] = append(groups[fp], issuers[i].ID)
	}

	duplicates := make(map[string][]string)

	for fp, issuerIDs := range groups {
		if len(issuerIDs) > 1 {
			sort.Strings(issuerIDs)
			duplicates[fp] = issuerIDs
		}
	}

	return duplicates, nil
}

// PrivateKey decodes (and, if needed, decrypts) a private-key PEM produced by GenerateKeyPair.
func (k *KeyManager) PrivateKey(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, vcerrors.NewSigningf("invalid private key PEM")
	}

	if block.Type == pemTypeEncryptedPrivateKey {
		decrypted, err := k.decryptPEM(block.Bytes)
		if err != nil {
			return nil, vcerrors.NewSigning(err)
		}

		block, _ = pem.Decode(decrypted)
		if block == nil {
			return nil, vcerrors.NewSigningf("invalid decrypted private key PEM")
		}
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, vcerrors.NewSigning(fmt.Errorf("failed to parse private key: %w", err))
	}

	privKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, vcerrors.NewSigningf("private key is not an Ed25519 key")
	}

	return privKey, nil
}

// KeyPair decodes the issuer's private-key PEM into a full key pair,
// deriving the public key and its did:key verification method.
func (k *KeyManager) KeyPair(pemBytes []byte) (*models.IssuerKeyPair, error) {
	privKey, err := k.PrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}

	pubKey := privKey.Public().(ed25519.PublicKey)

	_, keyID := fingerprint.CreateDIDKey(pubKey)

	return &models.IssuerKeyPair{
		PrivateKeyPEM: pemBytes,
		PublicKey:     pubKey,
		PublicKeyID:   keyID,
	}, nil
}

// KeyFingerprint returns a short, stable fingerprint of private key material:
// the base58 encoding of its SHA-256 digest.
func KeyFingerprint(pemBytes []byte) string {
	digest := sha256.Sum256(pemBytes)

	return base58.Encode(digest[:])
}

func (k *KeyManager) encryptPEM(pemBytes []byte) ([]byte, error) {
	encrypter, err := jose.NewEncrypter(jose.A256GCM,
		jose.Recipient{Algorithm: jose.PBES2_HS256_A128KW, Key: k.passphrase}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key encrypter: %w", err)
	}

	jwe, err := encrypter.Encrypt(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key PEM: %w", err)
	}

	serialized, err := jwe.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize encrypted private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: pemTypeEncryptedPrivateKey, Bytes: []byte(serialized)}), nil
}

func (k *KeyManager) decryptPEM(jweBytes []byte) ([]byte, error) {
	if k.passphrase == "" {
		return nil, errors.New("private key is passphrase-protected but no passphrase is configured")
	}

	jwe, err := jose.ParseEncrypted(string(jweBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse encrypted private key: %w", err)
	}

	decrypted, err := jwe.Decrypt(k.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}

	return decrypted, nil
}
