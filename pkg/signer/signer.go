/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package signer builds canonical Open Badges v3 credential documents and computes
// detached Ed25519Signature2020 proofs over them.
//
// It uses the RDF Dataset Normalization Algorithm (URDNA2015) to transform a document
// into its canonical form, SHA-256 as the statement digest algorithm, and Ed25519 as
// the signature algorithm. Signature bytes are encoded as multibase base58-btc.
package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/multiformats/go-multibase"
	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/badgevc/pkg/ldcontext"
	"github.com/trustbloc/badgevc/pkg/models"
	"github.com/trustbloc/badgevc/pkg/vcerrors"
)

const logModuleName = "badgevc-signer"

var logger = log.New(logModuleName)

const (
	// ProofType is the signature suite used for assertion proofs.
	ProofType = "Ed25519Signature2020"
	// ProofPurpose is the proof purpose set on assertion proofs.
	ProofPurpose = "assertionMethod"

	// SecurityContext is the context under which proof options are canonicalized.
	SecurityContext = "https://w3id.org/security/suites/ed25519-2020/v1"

	rdfDataSetAlg = "URDNA2015"
	rdfFormat     = "application/n-quads"

	timeFormat = "2006-01-02T15:04:05Z"
)

// CredentialContexts is the ordered @context applied to every credential document.
var CredentialContexts = []string{ //nolint:gochecknoglobals
	ldcontext.ContextCredentialsV2,
	ldcontext.ContextOpenBadgesV3,
}

// KeyDecoder decodes issuer private-key PEM material.
type KeyDecoder interface {
	PrivateKey(pemBytes []byte) (ed25519.PrivateKey, error)
}

// Signer assembles credential documents for badge assertions and computes and
// validates detached cryptographic proofs over them.
type Signer struct {
	contexts   *ldcontext.Cache
	docLoader  ld.DocumentLoader
	keyDecoder KeyDecoder
}

// New returns a new credential signer. Canonicalization resolves @context URLs
// through the given context cache.
func New(contexts *ldcontext.Cache, keyDecoder KeyDecoder) *Signer {
	return &Signer{
		contexts:   contexts,
		docLoader:  ldcontext.NewDocumentLoader(contexts),
		keyDecoder: keyDecoder,
	}
}

// Opt configures a single signing operation.
type Opt func(*signContext)

type signContext struct {
	created *time.Time
}

// WithCreated sets the proof creation time instead of the current time.
// Rebaking passes the prior proof's timestamp here so that re-signing with an
// unchanged key yields a byte-identical proof.
func WithCreated(t time.Time) Opt {
	return func(ctx *signContext) {
		ctx.created = &t
	}
}

// BuildCredential assembles the unsigned canonical credential document for the given
// badge assertion, embedding the issuer profile, recipient identity, achievement
// reference and evidence. The credential contexts are resolved up front so that an
// unresolvable context surfaces here rather than mid-canonicalization.
func (s *Signer) BuildCredential(assertion *models.Assertion, issuer *models.Issuer) (models.CredentialDocument, error) {
	if err := validateAssertion(assertion, issuer); err != nil {
		return nil, err
	}

	if _, err := s.contexts.Resolve(CredentialContexts); err != nil {
		return nil, vcerrors.NewMalformedDocument(fmt.Errorf("failed to resolve credential contexts: %w", err))
	}

	contexts := make([]interface{}, len(CredentialContexts))
	for i, u := range CredentialContexts {
		contexts[i] = u
	}

	issuerNode := map[string]interface{}{
		"id":   issuer.URL,
		"type": "Profile",
		"name": issuer.Name,
	}

	if issuer.ImageURL != "" {
		issuerNode["image"] = issuer.ImageURL
	}

	achievement := map[string]interface{}{
		"id":   assertion.BadgeClassID,
		"type": "Achievement",
	}

	if assertion.BadgeClassName != "" {
		achievement["name"] = assertion.BadgeClassName
	}

	subject := map[string]interface{}{
		"type": "AchievementSubject",
		"identifier": map[string]interface{}{
			"type":         "IdentityObject",
			"identityType": assertion.RecipientType,
			"identityHash": assertion.RecipientIdentity,
		},
		"achievement": achievement,
	}

	doc := models.CredentialDocument{
		"@context":          contexts,
		"id":                credentialID(assertion.ID),
		"type":              []interface{}{"VerifiableCredential", "OpenBadgeCredential"},
		"issuer":            issuerNode,
		"validFrom":         formatTime(assertion.IssuedOn),
		"credentialSubject": subject,
	}

	if assertion.Expires != nil {
		doc["validUntil"] = formatTime(*assertion.Expires)
	}

	if evidence := evidenceNodes(assertion); len(evidence) > 0 {
		doc["evidence"] = evidence
	}

	return doc, nil
}

// Sign canonicalizes the document, computes an Ed25519 signature over the canonical
// bytes using the issuer's private key, and returns a detached proof referencing the
// issuer's public key identifier.
func (s *Signer) Sign(doc models.CredentialDocument, keyPair *models.IssuerKeyPair, opts ...Opt) (*models.Proof, error) {
	signingCtx := &signContext{}

	for _, opt := range opts {
		opt(signingCtx)
	}

	created := time.Now()
	if signingCtx.created != nil {
		created = *signingCtx.created
	}

	proof := &models.Proof{
		Type:               ProofType,
		Created:            formatTime(created),
		VerificationMethod: keyPair.PublicKeyID,
		ProofPurpose:       ProofPurpose,
	}

	verifyData, err := s.verifyData(doc, proof)
	if err != nil {
		return nil, err
	}

	privKey, err := s.keyDecoder.PrivateKey(keyPair.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	signature := ed25519.Sign(privKey, verifyData)

	proofValue, err := multibase.Encode(multibase.Base58BTC, signature)
	if err != nil {
		return nil, vcerrors.NewSigning(fmt.Errorf("failed to encode proof value: %w", err))
	}

	proof.ProofValue = proofValue

	return proof, nil
}

// Verify recomputes the canonical form of the document and checks the proof's signature
// against the given public key. A well-formed proof that simply doesn't match returns
// (false, nil); a document that cannot be canonicalized at all returns a
// *vcerrors.MalformedDocumentError.
func (s *Signer) Verify(doc models.CredentialDocument, proof *models.Proof, publicKey ed25519.PublicKey) (bool, error) {
	if proof == nil || proof.ProofValue == "" {
		return false, nil
	}

	// ed25519.Verify panics on keys of the wrong size.
	if len(publicKey) != ed25519.PublicKeySize {
		return false, nil
	}

	verifyData, err := s.verifyData(doc, proof)
	if err != nil {
		return false, err
	}

	_, signature, err := multibase.Decode(proof.ProofValue)
	if err != nil {
		logger.Debugf("proof value is not valid multibase: %s", err)

		return false, nil
	}

	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}

	return ed25519.Verify(publicKey, verifyData, signature), nil
}

// verifyData computes the byte sequence that is signed and verified:
// SHA-256(canonical proof options) || SHA-256(canonical document without proof).
func (s *Signer) verifyData(doc models.CredentialDocument, proof *models.Proof) ([]byte, error) {
	docCopy := make(map[string]interface{}, len(doc))

	for k, v := range doc {
		if k == "proof" {
			continue
		}

		docCopy[k] = v
	}

	canonicalDoc, err := s.canonicalize(docCopy)
	if err != nil {
		return nil, err
	}

	proofOptions := map[string]interface{}{
		"@context":           SecurityContext,
		"type":               proof.Type,
		"created":            proof.Created,
		"verificationMethod": proof.VerificationMethod,
		"proofPurpose":       proof.ProofPurpose,
	}

	canonicalProofOptions, err := s.canonicalize(proofOptions)
	if err != nil {
		return nil, err
	}

	proofOptionsDigest := sha256.Sum256([]byte(canonicalProofOptions))
	docDigest := sha256.Sum256([]byte(canonicalDoc))

	return append(proofOptionsDigest[:], docDigest[:]...), nil
}

// canonicalize returns the URDNA2015 normalized form of the document as n-quads.
// The result is independent of field order and whitespace in the input.
func (s *Signer) canonicalize(doc map[string]interface{}) (string, error) {
	proc := ld.NewJsonLdProcessor()

	options := ld.NewJsonLdOptions("")
	options.DocumentLoader = s.docLoader
	options.Algorithm = rdfDataSetAlg
	options.Format = rdfFormat

	canonical, err := proc.Normalize(doc, options)
	if err != nil {
		return "", vcerrors.NewMalformedDocument(fmt.Errorf("failed to canonicalize document: %w", err))
	}

	nquads, ok := canonical.(string)
	if !ok {
		return "", vcerrors.NewMalformedDocumentf("unexpected canonicalization result of type %T", canonical)
	}

	return nquads, nil
}

func validateAssertion(assertion *models.Assertion, issuer *models.Issuer) error {
	switch {
	case assertion.RecipientIdentity == "":
		return vcerrors.NewMalformedDocumentf("assertion %s has no recipient identity", assertion.ID)
	case assertion.BadgeClassID == "":
		return vcerrors.NewMalformedDocumentf("assertion %s has no badge class reference", assertion.ID)
	case assertion.IssuedOn.IsZero():
		return vcerrors.NewMalformedDocumentf("assertion %s has no issuance timestamp", assertion.ID)
	case issuer.URL == "" || issuer.Name == "":
		return vcerrors.NewMalformedDocumentf("issuer %s is missing profile fields", issuer.ID)
	}

	return nil
}

func evidenceNodes(assertion *models.Assertion) []interface{} {
	var nodes []interface{}

	for _, e := range assertion.Evidence {
		node := map[string]interface{}{"type": "Evidence"}

		if e.ID != "" {
			node["id"] = e.ID
		}

		if e.Narrative != "" {
			node["narrative"] = e.Narrative
		}

		nodes = append(nodes, node)
	}

	if assertion.Narrative != "" {
		nodes = append(nodes, map[string]interface{}{"type": "Evidence", "narrative": assertion.Narrative})
	}

	return nodes
}

// credentialID derives the credential document ID from the assertion ID.
// UUID-shaped IDs become urn:uuid URIs; anything else is assumed to already be a URI.
func credentialID(assertionID string) string {
	if _, err := uuid.Parse(assertionID); err == nil {
		return "urn:uuid:" + assertionID
	}

	return assertionID
}

// formatTime renders a timestamp in the fixed-precision UTC representation used in
// signed documents. Local-timezone leakage here would break canonicalization stability.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
