package oracle

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"raffle/internal/logger"
	"raffle/internal/raffle"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"
	"go.uber.org/zap"
)

const proofRetention = 1024

var suite = bn256.NewSuite()

// Proof lets anyone holding the oracle public key check the words delivered
// for a request.
type Proof struct {
	RequestID raffle.RequestID
	Seed      []byte
	Signature []byte
}

// ProofStore keeps proofs beyond the in-memory window and across restarts.
type ProofStore interface {
	SaveProof(proof Proof) error
	LoadProof(id raffle.RequestID) (Proof, bool, error)
}

type BLSOption func(*BLS)

func WithProofStore(store ProofStore) BLSOption {
	return func(o *BLS) { o.store = store }
}

// BLS derives random words from a BLS signature over a per-request seed, in
// the manner of a verifiable random function.
type BLS struct {
	*dispatcher

	private kyber.Scalar
	public  kyber.Point
	nonce   []byte

	proofMu sync.Mutex
	proofs  map[raffle.RequestID]Proof
	store   ProofStore
	log     *zap.Logger
}

func NewBLS(privateKeyHex string, delay time.Duration, options ...BLSOption) (*BLS, error) {
	private, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("oracle: read nonce: %w", err)
	}

	o := &BLS{
		private: private,
		public:  suite.G2().Point().Mul(private, nil),
		nonce:   nonce,
		proofs:  make(map[raffle.RequestID]Proof),
		log:     logger.Named("oracle.bls"),
	}
	for _, option := range options {
		option(o)
	}
	o.dispatcher = newDispatcher(delay, o.words, o.log)
	return o, nil
}

// GenerateKey returns a fresh hex-encoded private/public key pair.
func GenerateKey() (string, string, error) {
	private, public := bls.NewKeyPair(suite, random.New())
	privateBytes, err := private.MarshalBinary()
	if err != nil {
		return "", "", err
	}
	publicBytes, err := public.MarshalBinary()
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(privateBytes), hex.EncodeToString(publicBytes), nil
}

func ParsePrivateKey(privateKeyHex string) (kyber.Scalar, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("oracle: private key is not hex: %w", err)
	}
	private := suite.G2().Scalar()
	if len(raw) != private.MarshalSize() {
		return nil, fmt.Errorf("oracle: private key must be %d bytes", private.MarshalSize())
	}
	if err := private.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("oracle: private key is invalid: %w", err)
	}
	return private, nil
}

func (o *BLS) PublicKey() kyber.Point {
	return o.public
}

func (o *BLS) PublicKeyHex() (string, error) {
	raw, err := o.public.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func (o *BLS) seed(id raffle.RequestID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	h := sha256.New()
	h.Write(o.nonce)
	h.Write(buf)
	return h.Sum(nil)
}

func (o *BLS) words(id raffle.RequestID, numWords uint32) ([]*big.Int, error) {
	seed := o.seed(id)
	signature, err := bls.Sign(suite, o.private, seed)
	if err != nil {
		return nil, fmt.Errorf("sign seed: %w", err)
	}

	proof := Proof{RequestID: id, Seed: seed, Signature: signature}
	o.proofMu.Lock()
	o.proofs[id] = proof
	delete(o.proofs, id-proofRetention)
	o.proofMu.Unlock()

	if o.store != nil {
		// The words are still delivered; the proof stays servable from memory.
		if err := o.store.SaveProof(proof); err != nil {
			o.log.Error("oracle: cannot persist proof", zap.Uint64("request id", uint64(id)), zap.Error(err))
		}
	}

	return deriveWords(signature, numWords), nil
}

func deriveWords(signature []byte, numWords uint32) []*big.Int {
	words := make([]*big.Int, numWords)
	index := make([]byte, 4)
	for i := range words {
		binary.BigEndian.PutUint32(index, uint32(i))
		h := sha256.New()
		h.Write(signature)
		h.Write(index)
		words[i] = new(big.Int).SetBytes(h.Sum(nil))
	}
	return words
}

// Proof returns the proof recorded when the request was fulfilled, falling
// back to the proof store for older requests.
func (o *BLS) Proof(id raffle.RequestID) (Proof, bool) {
	o.proofMu.Lock()
	proof, ok := o.proofs[id]
	o.proofMu.Unlock()
	if ok || o.store == nil {
		return proof, ok
	}

	proof, ok, err := o.store.LoadProof(id)
	if err != nil {
		o.log.Error("oracle: cannot load proof", zap.Uint64("request id", uint64(id)), zap.Error(err))
		return Proof{}, false
	}
	return proof, ok
}

// Verify checks the signature in proof against public and that words were
// derived from it.
func Verify(public kyber.Point, proof Proof, words []*big.Int) error {
	if err := bls.Verify(suite, public, proof.Seed, proof.Signature); err != nil {
		return fmt.Errorf("oracle: signature: %w", err)
	}
	expected := deriveWords(proof.Signature, uint32(len(words)))
	for i := range words {
		if words[i] == nil || !bytes.Equal(words[i].Bytes(), expected[i].Bytes()) {
			return errors.New("oracle: random words do not match proof")
		}
	}
	return nil
}
