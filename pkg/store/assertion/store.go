/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package assertion

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/badgevc/pkg/models"
	"github.com/trustbloc/badgevc/pkg/vcerrors"
)

const (
	namespace = "assertion"

	issuerIDIndex = "issuerID"
)

var logger = log.New("badgevc-assertion-store")

// Store persists badge assertions and their current proofs.
// Records are indexed by issuer ID so that all assertions affected by a key
// rotation can be retrieved together.
type Store struct {
	store     storage.Store
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

// New returns a new assertion store backed by the given provider.
func New(provider storage.Provider) (*Store, error) {
	store, err := provider.OpenStore(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open assertion store: %w", err)
	}

	err = provider.SetStoreConfig(namespace, storage.StoreConfiguration{TagNames: []string{issuerIDIndex}})
	if err != nil {
		return nil, fmt.Errorf("failed to set assertion store configuration: %w", err)
	}

	return &Store{
		store:     store,
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
	}, nil
}

// Get retrieves an assertion. Returns vcerrors.ErrAssertionNotFound if no assertion
// exists under the given ID.
func (s *Store) Get(assertionID string) (*models.Assertion, error) {
	assertionBytes, err := s.store.Get(assertionID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, vcerrors.ErrAssertionNotFound
		}

		return nil, fmt.Errorf("failed to get assertion %s: %w", assertionID, err)
	}

	assertion := &models.Assertion{}

	if err := s.unmarshal(assertionBytes, assertion); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assertion %s: %w", assertionID, err)
	}

	return assertion, nil
}

// Put stores the given assertion.
func (s *Store) Put(assertion *models.Assertion) error {
	assertionBytes, err := s.marshal(assertion)
	if err != nil {
		return fmt.Errorf("failed to marshal assertion %s: %w", assertion.ID, err)
	}

	tag := storage.Tag{Name: issuerIDIndex, Value: assertion.IssuerID}

	if err := s.store.Put(assertion.ID, assertionBytes, tag); err != nil {
		return fmt.Errorf("failed to store assertion %s: %w", assertion.ID, err)
	}

	return nil
}

// UpdateProof replaces the assertion's proof. The previous proof is discarded.
func (s *Store) UpdateProof(assertionID string, proof *models.Proof) error {
	assertion, err := s.Get(assertionID)
	if err != nil {
		return err
	}

	assertion.Proof = proof

	return s.Put(assertion)
}

// GetByIssuerID retrieves all assertions issued by the given issuer.
func (s *Store) GetByIssuerID(issuerID string) ([]models.Assertion, error) {
	iterator, err := s.store.Query(fmt.Sprintf("%s:%s", issuerIDIndex, issuerID))
	if err != nil {
		return nil, fmt.Errorf("failed to query assertion store: %w", err)
	}

	defer storage.Close(iterator, logger)

	var assertions []models.Assertion

	moreEntries, err := iterator.Next()
	if err != nil {
		return nil, err
	}

	for moreEntries {
		assertionBytes, valueErr := iterator.Value()
		if valueErr != nil {
			return nil, valueErr
		}

		var assertion models.Assertion

		if err := s.unmarshal(assertionBytes, &assertion); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assertion: %w", err)
		}

		assertions = append(assertions, assertion)

		moreEntries, err = iterator.Next()
		if err != nil {
			return nil, err
		}
	}

	return assertions, nil
}
