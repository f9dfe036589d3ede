/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package badge is the entry point used by surrounding tooling: single-assertion
// signing at issuance time, public verification, batch rebaking and the
// duplicate-key administrative flows.
package badge

import (
	"crypto/ed25519"
	"fmt"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/badgevc/pkg/keymanager"
	"github.com/trustbloc/badgevc/pkg/ldcontext"
	"github.com/trustbloc/badgevc/pkg/models"
	"github.com/trustbloc/badgevc/pkg/rebake"
	"github.com/trustbloc/badgevc/pkg/signer"
	assertionstore "github.com/trustbloc/badgevc/pkg/store/assertion"
	issuerstore "github.com/trustbloc/badgevc/pkg/store/issuer"
	"github.com/trustbloc/badgevc/pkg/vcerrors"
)

const logModuleName = "badgevc-service"

var logger = log.New(logModuleName)

// Config holds the collaborators and settings for the badge service.
type Config struct {
	// StorageProvider backs the issuer and assertion stores.
	StorageProvider storage.Provider
	// ContextCache is the JSON-LD context cache. A default cache is created when nil.
	ContextCache *ldcontext.Cache
	// KeyPassphrase, when non-empty, protects private-key PEMs at rest.
	KeyPassphrase string
	// Prewarm eagerly fetches well-known context documents at construction time.
	Prewarm bool
	// PrewarmContexts overrides the default pre-warm list.
	PrewarmContexts []string
}

// Service exposes the credential signing and verification engine to collaborators.
type Service struct {
	assertions *assertionstore.Store
	issuers    *issuerstore.Store
	keys       *keymanager.KeyManager
	signer     *signer.Signer
	rebaker    *rebake.Pipeline
	contexts   *ldcontext.Cache
}

// New returns a new badge service.
func New(cfg *Config) (*Service, error) {
	assertions, err := assertionstore.New(cfg.StorageProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create assertion store: %w", err)
	}

	issuers, err := issuerstore.New(cfg.StorageProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create issuer store: %w", err)
	}

	contexts := cfg.ContextCache
	if contexts == nil {
		contexts = ldcontext.NewCache()
	}

	var keyOpts []keymanager.Option

	if cfg.KeyPassphrase != "" {
		keyOpts = append(keyOpts, keymanager.WithPassphrase(cfg.KeyPassphrase))
	}

	keys := keymanager.New(issuers, keyOpts...)

	credSigner := signer.New(contexts, keys)

	s := &Service{
		assertions: assertions,
		issuers:    issuers,
		keys:       keys,
		signer:     credSigner,
		contexts:   contexts,
	}

	s.rebaker = rebake.New(assertions, issuers, keys, credSigner,
		func(assertion *models.Assertion, proof *models.Proof) error {
			return assertions.UpdateProof(assertion.ID, proof)
		})

	if cfg.Prewarm {
		prewarmContexts := cfg.PrewarmContexts
		if prewarmContexts == nil {
			prewarmContexts = ldcontext.WellKnownContexts
		}

		contexts.Prewarm(prewarmContexts)
	}

	return s, nil
}

// CreateIssuer stores a new issuer record, generating its key pair first if the
// record carries no key material.
func (s *Service) CreateIssuer(issuer *models.Issuer) error {
	if len(issuer.PrivateKeyPEM) == 0 {
		keyPair, err := s.keys.GenerateKeyPair()
		if err != nil {
			return err
		}

		issuer.PrivateKeyPEM = keyPair.PrivateKeyPEM
		issuer.PublicKeyID = keyPair.PublicKeyID
	}

	return s.issuers.Put(issuer)
}

// CreateAssertion stores a new badge assertion record.
func (s *Service) CreateAssertion(assertion *models.Assertion) error {
	return s.assertions.Put(assertion)
}

// SignAssertion builds the credential document for the given assertion, signs it with
// the issuer's current key, self-verifies the resulting proof, persists it and returns
// it. Unlike batch rebaking, errors here propagate to the caller.
func (s *Service) SignAssertion(assertionID string) (*models.Proof, error) {
	assertion, err := s.assertions.Get(assertionID)
	if err != nil {
		return nil, err
	}

	issuer, err := s.issuers.Get(assertion.IssuerID)
	if err != nil {
		return nil, err
	}

	keyPair, err := s.keys.KeyPair(issuer.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	doc, err := s.signer.BuildCredential(assertion, issuer)
	if err != nil {
		return nil, err
	}

	proof, err := s.signer.Sign(doc, keyPair)
	if err != nil {
		return nil, err
	}

	verified, err := s.signer.Verify(doc, proof, keyPair.PublicKey)
	if err != nil {
		return nil, err
	}

	if !verified {
		return nil, vcerrors.NewSigningf("self-verification of freshly signed assertion %s failed", assertionID)
	}

	if err := s.assertions.UpdateProof(assertionID, proof); err != nil {
		return nil, fmt.Errorf("failed to persist proof for assertion %s: %w", assertionID, err)
	}

	return proof, nil
}

// VerifyAssertion rebuilds the assertion's credential document and checks its stored
// proof against the issuer's current public key. An assertion without a proof verifies
// as false without error.
func (s *Service) VerifyAssertion(assertionID string) (bool, error) {
	assertion, err := s.assertions.Get(assertionID)
	if err != nil {
		return false, err
	}

	if assertion.Proof == nil {
		return false, nil
	}

	issuer, err := s.issuers.Get(assertion.IssuerID)
	if err != nil {
		return false, err
	}

	keyPair, err := s.keys.KeyPair(issuer.PrivateKeyPEM)
	if err != nil {
		return false, err
	}

	doc, err := s.signer.BuildCredential(assertion, issuer)
	if err != nil {
		return false, err
	}

	return s.signer.Verify(doc, assertion.Proof, keyPair.PublicKey)
}

// VerifyCredential checks a caller-supplied proof over a credential document against
// the given public key. Unlike VerifyAssertion it does not consult the stores, so it
// can validate historic proofs against retired keys.
func (s *Service) VerifyCredential(doc models.CredentialDocument, proof *models.Proof,
	publicKey ed25519.PublicKey) (bool, error) {
	return s.signer.Verify(doc, proof, publicKey)
}

// RebakeAssertions re-signs the given assertions using each issuer's current key
// material. Per-item failures are captured in the report and never abort the batch.
func (s *Service) RebakeAssertions(assertionIDs []string) (*models.RebakeReport, error) {
	return s.rebaker.Run(assertionIDs)
}

// FindDuplicateIssuerKeys returns groups of issuers sharing byte-identical private
// key material, keyed by key fingerprint.
func (s *Service) FindDuplicateIssuerKeys() (map[string][]string, error) {
	return s.keys.FindDuplicateKeys()
}

// RecalculateDuplicateKeys detects issuers with duplicate private keys, rotates each
// affected issuer's key, and rebakes every previously proofed assertion under those
// issuers. New keys are persisted before any assertion is resigned against them.
func (s *Service) RecalculateDuplicateKeys() (*models.RebakeReport, error) {
	duplicates, err := s.keys.FindDuplicateKeys()
	if err != nil {
		return nil, err
	}

	if len(duplicates) == 0 {
		logger.Infof("no duplicate private keys found")

		return &models.RebakeReport{}, nil
	}

	var assertionIDs []string

	for fp, issuerIDs := range duplicates {
		logger.Warnf("found %d issuers sharing private key material (fingerprint %s)", len(issuerIDs), fp)

		for _, issuerID := range issuerIDs {
			if _, err := s.keys.RotateKey(issuerID); err != nil {
				return nil, fmt.Errorf("failed to rotate key for issuer %s: %w", issuerID, err)
			}

			assertions, err := s.assertions.GetByIssuerID(issuerID)
			if err != nil {
				return nil, fmt.Errorf("failed to load assertions for issuer %s: %w", issuerID, err)
			}

			for i := range assertions {
				if assertions[i].Proof == nil {
					continue
				}

				assertionIDs = append(assertionIDs, assertions[i].ID)
			}
		}
	}

	logger.Infof("rebaking %d assertions under %d duplicate key groups", len(assertionIDs), len(duplicates))

	return s.rebaker.Run(assertionIDs)
}
