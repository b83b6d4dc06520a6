package oracle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"raffle/internal/logger"
	"raffle/internal/raffle"
)

var wordLimit = new(big.Int).Lsh(big.NewInt(1), 256)

// Local draws uniform 256-bit words from crypto/rand.
type Local struct {
	*dispatcher
}

func NewLocal(delay time.Duration) *Local {
	return &Local{dispatcher: newDispatcher(delay, localWords, logger.Named("oracle.local"))}
}

func localWords(_ raffle.RequestID, numWords uint32) ([]*big.Int, error) {
	words := make([]*big.Int, numWords)
	for i := range words {
		word, err := rand.Int(rand.Reader, wordLimit)
		if err != nil {
			return nil, fmt.Errorf("read random word: %w", err)
		}
		words[i] = word
	}
	return words, nil
}
