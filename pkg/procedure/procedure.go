package procedure

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/vault"
)

// Kind tags which algorithm a Procedure runs. Procedures are a closed
// enumeration. Runner never reads Kind; behavior lives entirely in
// Run, supplied once by the constructor below.
type Kind int

const (
	KindGenerateKey Kind = iota
	KindBIP39Generate
	KindSlip10Generate
	KindSlip10Derive
	KindPublicKey
	KindEd25519Sign
	KindHmac
	KindWriteVault
)

func (k Kind) String() string {
	switch k {
	case KindGenerateKey:
		return "GenerateKey"
	case KindBIP39Generate:
		return "BIP39Generate"
	case KindSlip10Generate:
		return "Slip10Generate"
	case KindSlip10Derive:
		return "Slip10Derive"
	case KindPublicKey:
		return "PublicKey"
	case KindEd25519Sign:
		return "Ed25519Sign"
	case KindHmac:
		return "Hmac"
	case KindWriteVault:
		return "WriteVault"
	default:
		return "Unknown"
	}
}

// KeyAlgorithm selects the asymmetric algorithm a key-producing or
// key-consuming procedure operates on. Ed25519 is the only algorithm
// the default crypto.Provider implements; the type exists so adding a
// second algorithm later doesn't change every procedure's signature.
type KeyAlgorithm int

const (
	Ed25519 KeyAlgorithm = iota
)

// PublicOutput is the non-secret result a procedure hands back to its
// caller — a public key, a signature, a MAC, a generated mnemonic. A
// nil PublicOutput means the procedure produced none.
type PublicOutput []byte

// Procedure is a tagged description of one computation: read Sources,
// compute, optionally write Target. Run is supplied by the constructor
// matching Kind and must not retain its inputs argument or the slices
// it points to past its own return — the runner releases the borrowed
// plaintexts as soon as Run returns.
type Procedure struct {
	Kind    Kind
	Sources []vault.Location
	Target  *vault.Location

	Run func(provider crypto.Provider, inputs [][]byte) (secretOut []byte, publicOut PublicOutput, err error)
}

// GenerateKey produces fresh key material for algo and writes it to
// target. For Ed25519 this is a 32-byte random seed; PublicKey and
// Ed25519Sign both expect a source written by GenerateKey (or
// Slip10Generate/Slip10Derive truncated to 32 bytes).
func GenerateKey(algo KeyAlgorithm, target vault.Location) Procedure {
	return Procedure{
		Kind:   KindGenerateKey,
		Target: &target,
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			switch algo {
			case Ed25519:
				seed := make([]byte, 32)
				if err := provider.Random(seed); err != nil {
					return nil, nil, fmt.Errorf("procedure: generate key: %w", err)
				}
				return seed, nil, nil
			default:
				return nil, nil, fmt.Errorf("procedure: generate key: unsupported algorithm %d", algo)
			}
		},
	}
}

// BIP39Generate produces entropyBits of fresh entropy (128 by default),
// derives a 64-byte seed from it, and writes the seed to target. The
// capability interface treats mnemonic encoding as an external,
// pluggable algorithm (spec §1/§6); this engine represents the
// recovery phrase as the hex encoding of the entropy rather than
// embedding a word list, and returns that string as the public output.
func BIP39Generate(entropyBits int, target vault.Location) Procedure {
	if entropyBits <= 0 {
		entropyBits = 128
	}
	return Procedure{
		Kind:   KindBIP39Generate,
		Target: &target,
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			entropy := make([]byte, entropyBits/8)
			if err := provider.Random(entropy); err != nil {
				return nil, nil, fmt.Errorf("procedure: bip39 generate: %w", err)
			}
			mnemonic := hex.EncodeToString(entropy)
			seed := pbkdf2.Key([]byte(mnemonic), []byte("mnemonic"), 2048, 64, sha512.New)
			return seed, PublicOutput(mnemonic), nil
		},
	}
}

// Slip10Generate derives a master (key, chain code) pair from fresh
// entropy following SLIP-10's root derivation (HMAC-SHA-512 of the seed
// under the fixed key "ed25519 seed") and writes the 64-byte
// concatenation key||chainCode to target.
func Slip10Generate(target vault.Location) Procedure {
	return Procedure{
		Kind:   KindSlip10Generate,
		Target: &target,
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			seed := make([]byte, 32)
			if err := provider.Random(seed); err != nil {
				return nil, nil, fmt.Errorf("procedure: slip10 generate: %w", err)
			}
			i, err := provider.HMAC([]byte("ed25519 seed"), seed)
			if err != nil {
				return nil, nil, fmt.Errorf("procedure: slip10 generate: %w", err)
			}
			return i, nil, nil
		},
	}
}

// Slip10Derive walks the chain stored at source through each hardened
// index in path using the provider's SLIP-10 derivation, and writes the
// resulting key||chainCode pair to target.
func Slip10Derive(source, target vault.Location, path []uint32) Procedure {
	return Procedure{
		Kind:    KindSlip10Derive,
		Sources: []vault.Location{source},
		Target:  &target,
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			if len(inputs) != 1 || len(inputs[0]) != 64 {
				return nil, nil, fmt.Errorf("procedure: slip10 derive: source must hold a 64-byte key||chainCode pair")
			}
			key := append([]byte(nil), inputs[0][:32]...)
			chainCode := append([]byte(nil), inputs[0][32:]...)
			for _, idx := range path {
				childKey, childChain, err := provider.DeriveKey(chainCode, key, idx)
				if err != nil {
					return nil, nil, fmt.Errorf("procedure: slip10 derive: %w", err)
				}
				key, chainCode = childKey, childChain
			}
			return append(key, chainCode...), nil, nil
		},
	}
}

// PublicKey derives the public key for the key material at source and
// returns it as the public output. It writes nothing.
func PublicKey(source vault.Location, algo KeyAlgorithm) Procedure {
	return Procedure{
		Kind:    KindPublicKey,
		Sources: []vault.Location{source},
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			switch algo {
			case Ed25519:
				seed := inputs[0]
				if len(seed) > 32 {
					seed = seed[:32]
				}
				pub, err := provider.Ed25519PublicKey(seed)
				if err != nil {
					return nil, nil, fmt.Errorf("procedure: public key: %w", err)
				}
				return nil, PublicOutput(pub), nil
			default:
				return nil, nil, fmt.Errorf("procedure: public key: unsupported algorithm %d", algo)
			}
		},
	}
}

// Ed25519Sign signs message with the Ed25519 private key stored at
// source and returns the signature as the public output. It writes
// nothing.
func Ed25519Sign(source vault.Location, message []byte) Procedure {
	msg := append([]byte(nil), message...)
	return Procedure{
		Kind:    KindEd25519Sign,
		Sources: []vault.Location{source},
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			seed := inputs[0]
			if len(seed) > 32 {
				seed = seed[:32]
			}
			sig, err := provider.Ed25519Sign(seed, msg)
			if err != nil {
				return nil, nil, fmt.Errorf("procedure: ed25519 sign: %w", err)
			}
			return nil, PublicOutput(sig), nil
		},
	}
}

// Hmac computes HMAC-SHA-512 of message keyed by the secret stored at
// source and returns the MAC as the public output. It writes nothing.
func Hmac(source vault.Location, message []byte) Procedure {
	msg := append([]byte(nil), message...)
	return Procedure{
		Kind:    KindHmac,
		Sources: []vault.Location{source},
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			mac, err := provider.HMAC(inputs[0], msg)
			if err != nil {
				return nil, nil, fmt.Errorf("procedure: hmac: %w", err)
			}
			return nil, PublicOutput(mac), nil
		},
	}
}

// WriteVault writes payload to target verbatim, with no source reads
// and no computation. It lets a caller that already holds a secret
// outside the engine (an imported key, a value from another chain
// step) inject it as an ordinary chain link, so chain rollback covers
// it the same as a computed output.
func WriteVault(payload []byte, target vault.Location) Procedure {
	p := append([]byte(nil), payload...)
	return Procedure{
		Kind:   KindWriteVault,
		Target: &target,
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			return p, nil, nil
		},
	}
}
