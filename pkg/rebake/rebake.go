/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package rebake re-signs previously issued badge assertions, typically after an
// issuer's key has been rotated. Each assertion is processed exactly once per run
// and ends in one of four terminal states; per-item failures never abort the batch.
package rebake

import (
	"sort"
	"time"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/badgevc/pkg/models"
	"github.com/trustbloc/badgevc/pkg/signer"
)

const logModuleName = "badgevc-rebake"

var logger = log.New(logModuleName)

// Status is the terminal state of one assertion within a rebake run.
type Status string

const (
	// StatusSignedChanged means the new proof differs from the prior one (expected after rotation).
	StatusSignedChanged Status = "SIGNED_CHANGED"
	// StatusSignedUnchanged means the new proof is byte-identical to the prior one.
	// Reported as a warning: the key likely didn't actually change.
	StatusSignedUnchanged Status = "SIGNED_UNCHANGED"
	// StatusNoPriorProof means the assertion had no proof to compare against (first-time signing).
	StatusNoPriorProof Status = "NO_PRIOR_PROOF"
	// StatusFailed means signing the assertion raised an error.
	StatusFailed Status = "FAILED"
)

// AssertionStore reads badge assertions.
type AssertionStore interface {
	Get(assertionID string) (*models.Assertion, error)
}

// IssuerStore reads issuer records.
type IssuerStore interface {
	Get(issuerID string) (*models.Issuer, error)
}

// KeyProvider decodes issuer private-key PEM material into a usable key pair.
type KeyProvider interface {
	KeyPair(pemBytes []byte) (*models.IssuerKeyPair, error)
}

// CredentialSigner rebuilds and re-signs credential documents.
type CredentialSigner interface {
	BuildCredential(assertion *models.Assertion, issuer *models.Issuer) (models.CredentialDocument, error)
	Sign(doc models.CredentialDocument, keyPair *models.IssuerKeyPair, opts ...signer.Opt) (*models.Proof, error)
}

// PersistFunc commits an assertion's new proof. It is invoked for each assertion
// before the pipeline advances to the next one, so an interrupted run never silently
// loses already-resigned proofs.
type PersistFunc func(assertion *models.Assertion, proof *models.Proof) error

// Pipeline is the batch rebake orchestrator. The pipeline signs; the surrounding
// collaborator commits, via the persist callback. Wrapping a whole
// rebake-plus-key-regeneration run in a transaction is the caller's responsibility.
type Pipeline struct {
	assertions AssertionStore
	issuers    IssuerStore
	keys       KeyProvider
	signer     CredentialSigner
	persist    PersistFunc
}

// New returns a new rebake pipeline.
func New(assertions AssertionStore, issuers IssuerStore, keys KeyProvider,
	credSigner CredentialSigner, persist PersistFunc) *Pipeline {
	return &Pipeline{
		assertions: assertions,
		issuers:    issuers,
		keys:       keys,
		signer:     credSigner,
		persist:    persist,
	}
}

// Run rebakes the given assertions using each issuer's current key material and
// reports the outcome per assertion. Assertions are processed in ascending
// creation order (ties broken by ID) so that progress reporting is reproducible.
func (p *Pipeline) Run(assertionIDs []string) (*models.RebakeReport, error) {
	report := &models.RebakeReport{}

	assertions := make([]*models.Assertion, 0, len(assertionIDs))

	for _, id := range assertionIDs {
		assertion, err := p.assertions.Get(id)
		if err != nil {
			p.fail(report, id, err)

			continue
		}

		assertions = append(assertions, assertion)
	}

	sort.Slice(assertions, func(i, j int) bool {
		if assertions[i].CreatedAt.Equal(assertions[j].CreatedAt) {
			return assertions[i].ID < assertions[j].ID
		}

		return assertions[i].CreatedAt.Before(assertions[j].CreatedAt)
	})

	for _, assertion := range assertions {
		status, err := p.rebakeOne(assertion)
		if err != nil {
			p.fail(report, assertion.ID, err)

			continue
		}

		switch status {
		case StatusSignedChanged:
			report.Changed++
		case StatusSignedUnchanged:
			report.Unchanged++

			logger.Warnf("proof value unchanged for assertion %s", assertion.ID)
		case StatusNoPriorProof:
			report.NoPriorProof++
		case StatusFailed: // handled above
		}
	}

	logger.Infof("rebake run complete: %d changed, %d unchanged, %d without prior proof, %d failed",
		report.Changed, report.Unchanged, report.NoPriorProof, len(report.Failed))

	return report, nil
}

func (p *Pipeline) rebakeOne(assertion *models.Assertion) (Status, error) {
	var priorProofValue string

	var opts []signer.Opt

	if assertion.Proof != nil {
		priorProofValue = assertion.Proof.ProofValue

		// Reuse the prior proof timestamp so that re-signing with an unchanged key
		// yields a byte-identical proof, which is what makes UNCHANGED detectable.
		created, err := time.Parse(time.RFC3339, assertion.Proof.Created)
		if err != nil {
			logger.Warnf("cannot carry over proof timestamp %q for assertion %s, the new proof "+
				"will differ even under an unchanged key: %s", assertion.Proof.Created, assertion.ID, err)
		} else {
			opts = append(opts, signer.WithCreated(created))
		}
	}

	issuer, err := p.issuers.Get(assertion.IssuerID)
	if err != nil {
		return StatusFailed, err
	}

	keyPair, err := p.keys.KeyPair(issuer.PrivateKeyPEM)
	if err != nil {
		return StatusFailed, err
	}

	doc, err := p.signer.BuildCredential(assertion, issuer)
	if err != nil {
		return StatusFailed, err
	}

	proof, err := p.signer.Sign(doc, keyPair, opts...)
	if err != nil {
		return StatusFailed, err
	}

	if err := p.persist(assertion, proof); err != nil {
		return StatusFailed, err
	}

	assertion.Proof = proof

	if priorProofValue == "" {
		return StatusNoPriorProof, nil
	}

	if proof.ProofValue == priorProofValue {
		return StatusSignedUnchanged, nil
	}

	return StatusSignedChanged, nil
}

func (p *Pipeline) fail(report *models.RebakeReport, assertionID string, err error) {
	logger.Errorf("failed to rebake assertion %s: %s", assertionID, err)

	report.Failed = append(report.Failed, models.FailedAssertion{ID: assertionID, Error: err.Error()})
}
