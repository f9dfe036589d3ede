/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package store selects the underlying aries storage provider that backs the
// issuer and assertion stores.
package store

import (
	"fmt"

	ariesmongodbstorage "github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// StorageTypeMemOption is an in-memory storage provider, suitable for tests and demos.
	StorageTypeMemOption = "mem"
	// StorageTypeMongoDBOption is a MongoDB-backed storage provider.
	StorageTypeMongoDBOption = "mongodb"
)

// NewProvider returns a storage provider of the given type.
// connectionString is ignored for the in-memory provider.
func NewProvider(storageType, connectionString string) (storage.Provider, error) {
	switch storageType {
	case StorageTypeMemOption:
		return mem.NewProvider(), nil
	case StorageTypeMongoDBOption:
		provider, err := ariesmongodbstorage.NewProvider(connectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB storage provider: %w", err)
		}

		return provider, nil
	default:
		return nil, fmt.Errorf("%s is not a supported storage type", storageType)
	}
}
