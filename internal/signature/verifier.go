// Package signature checks that a wallet owner signed a message with the
// Ethereum personal_sign scheme.
package signature

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/samandr77/microservices/identity/internal/entity"
)

const (
	personalMessagePrefix = "\x19Ethereum Signed Message:\n"
	signatureLen          = 65
	recoveryIDOffset      = 27
	maxRecoveryID         = 3
	addressLen            = 20
)

var addressRegexp = regexp.MustCompile(`^0[xX][0-9a-fA-F]{40}$`)

// Verifier is the injectable form of Verify.
type Verifier struct{}

func (Verifier) Verify(message, signature, claimedAddress string) (bool, error) {
	return Verify(message, signature, claimedAddress)
}

// Verify recovers the signer of message and compares it with claimedAddress
// ignoring case. Every failure returns false and an error wrapping
// entity.ErrSignatureInvalid.
func Verify(message, signature, claimedAddress string) (bool, error) {
	if !addressRegexp.MatchString(claimedAddress) {
		return false, fmt.Errorf("malformed address %q: %w", claimedAddress, entity.ErrSignatureInvalid)
	}

	recovered, err := Recover(message, signature)
	if err != nil {
		return false, err
	}

	if !strings.EqualFold(recovered, claimedAddress) {
		return false, fmt.Errorf("signer %s does not match %s: %w", recovered, claimedAddress, entity.ErrSignatureInvalid)
	}

	return true, nil
}

// Recover returns the lower-case 0x address that produced signature over message.
func Recover(message, signature string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("empty message: %w", entity.ErrSignatureInvalid)
	}

	raw := strings.TrimPrefix(strings.TrimPrefix(signature, "0x"), "0X")

	sig, err := hex.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", entity.ErrSignatureInvalid)
	}

	if len(sig) != signatureLen {
		return "", fmt.Errorf("signature length %d: %w", len(sig), entity.ErrSignatureInvalid)
	}

	// wallets send r || s || v with v either 0/1 or 27/28
	v := sig[signatureLen-1]
	if v >= recoveryIDOffset {
		v -= recoveryIDOffset
	}

	if v > maxRecoveryID {
		return "", fmt.Errorf("recovery id %d: %w", sig[signatureLen-1], entity.ErrSignatureInvalid)
	}

	compact := make([]byte, signatureLen)
	compact[0] = recoveryIDOffset + v
	copy(compact[1:], sig[:signatureLen-1])

	pub, _, err := ecdsa.RecoverCompact(compact, HashPersonalMessage(message))
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", entity.ErrSignatureInvalid)
	}

	return Address(pub), nil
}

// HashPersonalMessage returns keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func HashPersonalMessage(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(personalMessagePrefix))
	h.Write([]byte(strconv.Itoa(len(message))))
	h.Write([]byte(message))

	return h.Sum(nil)
}

// Address derives the lower-case 0x address of a public key.
func Address(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()

	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)

	return "0x" + hex.EncodeToString(sum[len(sum)-addressLen:])
}
