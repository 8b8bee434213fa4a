package signup

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

const (
	memberCodePrefix = "ZE-"
	minCredential    = 10000000
	maxCredential    = 99999999
)

// Credential is the check-in value assigned to a new member and the member
// code derived from it.
type Credential struct {
	Value      string
	MemberCode string
}

// CodeIssuer assigns credentials to new members.
type CodeIssuer interface {
	Issue() (Credential, error)
}

// NumericIssuer issues uniformly random 8-digit values.
type NumericIssuer struct {
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

func (n NumericIssuer) Issue() (Credential, error) {
	source := n.Rand
	if source == nil {
		source = rand.Reader
	}
	offset, err := rand.Int(source, big.NewInt(maxCredential-minCredential+1))
	if err != nil {
		return Credential{}, fmt.Errorf("draw credential: %w", err)
	}
	value := strconv.FormatInt(minCredential+offset.Int64(), 10)
	return Credential{Value: value, MemberCode: memberCodePrefix + value}, nil
}
