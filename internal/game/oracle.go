package game

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

type Side string

const (
	SideHead Side = "head"
	SideTail Side = "tail"
)

func (s Side) Valid() bool {
	return s == SideHead || s == SideTail
}

func ParseSide(raw string) (Side, error) {
	side := Side(strings.ToLower(strings.TrimSpace(raw)))
	if !side.Valid() {
		return "", fmt.Errorf("%w: invalid face selection %q", ErrInvalidBet, raw)
	}
	return side, nil
}

// Oracle maps a round id to a coin side with HMAC-SHA256. Anyone holding the
// secret can recompute every round; nobody else can predict one.
type Oracle struct {
	key      []byte
	insecure bool
}

func NewOracle(secret []byte) (*Oracle, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Oracle{key: key}, nil
}

// NewInsecureOracle builds an oracle on a development secret and marks it so
// the server can surface the fact on /health and in logs.
func NewInsecureOracle(secret []byte) (*Oracle, error) {
	o, err := NewOracle(secret)
	if err != nil {
		return nil, err
	}
	o.insecure = true
	return o, nil
}

func (o *Oracle) Insecure() bool { return o.insecure }

func (o *Oracle) sum(roundID int64) []byte {
	h := hmac.New(sha256.New, o.key)
	h.Write([]byte(strconv.FormatInt(roundID, 10)))
	return h.Sum(nil)
}

// ResultFor is even first digest byte -> head, odd -> tail.
func (o *Oracle) ResultFor(roundID int64) Side {
	if o.sum(roundID)[0]%2 == 0 {
		return SideHead
	}
	return SideTail
}

// Digest returns the hex HMAC for a round, for auditors.
func (o *Oracle) Digest(roundID int64) string {
	return hex.EncodeToString(o.sum(roundID))
}

func (o *Oracle) Verify(roundID int64, claimed Side) bool {
	return o.ResultFor(roundID) == claimed
}

// Commitment is the hex SHA-256 of the secret, published before play.
func (o *Oracle) Commitment() string {
	h := sha256.Sum256(o.key)
	return hex.EncodeToString(h[:])
}
