/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuer

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
	namespace = "issuer"

	issuerIndex = "issuer"
)

var logger = log.New("badgevc-issuer-store")

// Store persists issuer records, including their active private-key material.
// It wraps an aries store with the indexing needed to scan all issuers in one pass.
type Store struct {
	store     storage.Store
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

// New returns a new issuer store backed by the given provider.
func New(provider storage.Provider) (*Store, error) {
	store, err := provider.OpenStore(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open issuer store: %w", err)
	}

	err = provider.SetStoreConfig(namespace, storage.StoreConfiguration{TagNames: []string{issuerIndex}})
	if err != nil {
		return nil, fmt.Errorf("failed to set issuer store configuration: %w", err)
	}

	return &Store{
		store:     store,
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
	}, nil
}

// Get retrieves an issuer record. Returns vcerrors.ErrIssuerNotFound if no issuer
// exists under the given ID.
func (s *Store) Get(issuerID string) (*models.Issuer, error) {
	issuerBytes, err := s.store.Get(issuerID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, vcerrors.ErrIssuerNotFound
		}

		return nil, fmt.Errorf("failed to get issuer %s: %w", issuerID, err)
	}

	issuer := &models.Issuer{}

	if err := s.unmarshal(issuerBytes, issuer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issuer %s: %w", issuerID, err)
	}

	return issuer, nil
}

// Put stores the given issuer record.
func (s *Store) Put(issuer *models.Issuer) error {
	issuerBytes, err := s.marshal(issuer)
	if err != nil {
		return fmt.Errorf("failed to marshal issuer %s: %w", issuer.ID, err)
	}

	if err := s.store.Put(issuer.ID, issuerBytes, storage.Tag{Name: issuerIndex}); err != nil {
		return fmt.Errorf("failed to store issuer %s: %w", issuer.ID, err)
	}

	return nil
}

// GetAll retrieves every issuer record. Used by administrative jobs such as
// duplicate-key detection.
func (s *Store) GetAll() ([]models.Issuer, error) {
	iterator, err := s.store.Query(issuerIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query issuer store: %w", err)
	}

	defer storage.Close(iterator, logger)

	var issuers []models.Issuer

	moreEntries, err := iterator.Next()
	if err != nil {
		return nil, err
	}

	for moreEntries {
		issuerBytes, valueErr := iterator.Value()
		if valueErr != nil {
			return nil, valueErr
		}

		var issuer models.Issuer

		if err := s.unmarshal(issuerBytes, &issuer); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issuer: %w", err)
		}

		issuers = append(issuers, issuer)

		moreEntries, err = iterator.Next()
		if err != nil {
			return nil, err
		}
	}

	return issuers, nil
}
