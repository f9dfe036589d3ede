/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package models

import (
	"crypto/ed25519"
	"time"
)

// Proof is a detached linked-data proof over a credential document.
// It references the verification method (public key identifier) that a verifier
// must use to check ProofValue against the canonicalized document.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

// Evidence describes supporting evidence attached to a badge assertion.
type Evidence struct {
	ID        string `json:"id,omitempty"`
	Narrative string `json:"narrative,omitempty"`
}

// Assertion is the badge-assertion record read from the assertion store.
// It holds the content to be signed plus the current proof, if any.
type Assertion struct {
	ID                string     `json:"id"`
	IssuerID          string     `json:"issuerId"`
	BadgeClassID      string     `json:"badgeClassId"`
	BadgeClassName    string     `json:"badgeClassName"`
	RecipientType     string     `json:"recipientType"`
	RecipientIdentity string     `json:"recipientIdentity"`
	IssuedOn          time.Time  `json:"issuedOn"`
	Expires           *time.Time `json:"expires,omitempty"`
	Narrative         string     `json:"narrative,omitempty"`
	Evidence          []Evidence `json:"evidence,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	Proof             *Proof     `json:"proof,omitempty"`
}

// Issuer is the issuer record read from the issuer store. An issuer owns
// exactly one active key pair at a time; PrivateKeyPEM is the PKCS#8 PEM
// encoding of the active Ed25519 private key (optionally passphrase-protected).
type Issuer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Email         string `json:"email,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	PublicKeyID   string `json:"publicKeyId"`
	PrivateKeyPEM []byte `json:"privateKeyPem"`
}

// IssuerKeyPair is freshly generated or decoded issuer key material.
type IssuerKeyPair struct {
	PrivateKeyPEM []byte
	PublicKey     ed25519.PublicKey
	// PublicKeyID is the did:key verification method derived from the public key.
	PublicKeyID string
}

// CredentialDocument is the canonical JSON-LD representation of a badge assertion.
// Once a proof has been computed over it, changing any signed field invalidates the proof.
type CredentialDocument map[string]interface{}

// FailedAssertion identifies an assertion that could not be rebaked, with the error text
// needed to retry just the failures.
type FailedAssertion struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// RebakeReport summarizes one rebake pipeline run.
type RebakeReport struct {
	Changed      int               `json:"changed"`
	Unchanged    int               `json:"unchanged"`
	NoPriorProof int               `json:"noPriorProof"`
	Failed       []FailedAssertion `json:"failed,omitempty"`
}

// Total returns the number of assertions processed in the run.
func (r *RebakeReport) Total() int {
	return r.Changed + r.Unchanged + r.NoPriorProof + len(r.Failed)
}
