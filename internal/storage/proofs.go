package storage

import (
	"encoding/hex"
	"errors"
	"fmt"

	"raffle/internal/oracle"
	"raffle/internal/raffle"
)

// ProofStore persists oracle proofs so draws stay verifiable after a restart.
type ProofStore struct {
	storage Storage
}

func NewProofStore(storage Storage) *ProofStore {
	return &ProofStore{storage: storage}
}

func (p *ProofStore) SaveProof(proof oracle.Proof) error {
	row := &DrawProof{
		RequestID: uint64(proof.RequestID),
		Seed:      hex.EncodeToString(proof.Seed),
		Signature: hex.EncodeToString(proof.Signature),
	}
	return retryBusyExec(func() error { return p.storage.CreateProof(row) })
}

func (p *ProofStore) LoadProof(id raffle.RequestID) (oracle.Proof, bool, error) {
	row, err := retryBusy(func() (*DrawProof, error) { return p.storage.GetProof(uint64(id)) })
	if errors.Is(err, ErrNotFound) {
		return oracle.Proof{}, false, nil
	}
	if err != nil {
		return oracle.Proof{}, false, err
	}

	seed, err := hex.DecodeString(row.Seed)
	if err != nil {
		return oracle.Proof{}, false, fmt.Errorf("storage: proof %d seed is corrupt: %w", id, err)
	}
	signature, err := hex.DecodeString(row.Signature)
	if err != nil {
		return oracle.Proof{}, false, fmt.Errorf("storage: proof %d signature is corrupt: %w", id, err)
	}
	return oracle.Proof{RequestID: id, Seed: seed, Signature: signature}, true, nil
}
