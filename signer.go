package nostrmux

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/yanun0323/errors"
)

// Signer turns event parameters into a signed event. Implementations may
// be pure (key in memory) or asynchronous (an external signer reached over
// IPC), which is why the context is part of the contract.
type Signer interface {
	SignEvent(ctx context.Context, params EventParams) (*Event, error)
}

// NewKeySigner builds a Signer from a hex-encoded or bech32 (nsec) secret
// key. Signing follows NIP-01: the event id is the SHA-256 of the
// canonical serialization, the signature is BIP-340 Schnorr over the id.
func NewKeySigner(secretKey string) (Signer, error) {
	raw, err := decodeSecretKey(secretKey)
	if err != nil {
		return nil, err
	}
	sk := secp256k1.PrivKeyFromBytes(raw)
	return &keySigner{
		sk:     sk,
		pubkey: hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey())),
	}, nil
}

type keySigner struct {
	sk     *secp256k1.PrivateKey
	pubkey string
}

func (s *keySigner) SignEvent(_ context.Context, params EventParams) (*Event, error) {
	createdAt := params.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	tags := params.Tags
	if tags == nil {
		tags = [][]string{}
	}

	id, err := eventID(s.pubkey, createdAt, params.Kind, tags, params.Content)
	if err != nil {
		return nil, err
	}
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return nil, errors.Wrap(err, "decode event id")
	}

	sig, err := schnorr.Sign(s.sk, idBytes)
	if err != nil {
		return nil, errors.Wrap(err, "sign event")
	}

	return &Event{
		ID:        id,
		Pubkey:    s.pubkey,
		CreatedAt: createdAt,
		Kind:      params.Kind,
		Tags:      tags,
		Content:   params.Content,
		Sig:       hex.EncodeToString(sig.Serialize()),
	}, nil
}

// nullSigner is the default when neither a secret key nor a Signer is
// configured; it errors on first use rather than at construction.
type nullSigner struct{}

func (nullSigner) SignEvent(context.Context, EventParams) (*Event, error) {
	return nil, ErrNoSigner
}

// eventID computes the NIP-01 id: the SHA-256 of
// [0, pubkey, created_at, kind, tags, content] serialized without HTML
// escaping.
func eventID(pubkey string, createdAt int64, kind int, tags [][]string, content string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]any{0, pubkey, createdAt, kind, tags, content}); err != nil {
		return "", errors.Wrap(err, "serialize event")
	}
	sum := sha256.Sum256(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:]), nil
}

// decodeSecretKey accepts a 64-char hex key or a bech32 nsec key and
// returns the raw 32 bytes.
func decodeSecretKey(secretKey string) ([]byte, error) {
	if len(secretKey) > 5 && secretKey[:5] == "nsec1" {
		hrp, data, err := bech32.Decode(secretKey)
		if err != nil {
			return nil, errors.Wrap(err, "decode bech32 secret key")
		}
		if hrp != "nsec" {
			return nil, errors.Errorf("unexpected bech32 prefix %q", hrp)
		}
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, errors.Wrap(err, "convert bech32 payload")
		}
		if len(raw) != 32 {
			return nil, errors.Errorf("secret key is %d bytes, want 32", len(raw))
		}
		return raw, nil
	}

	raw, err := hex.DecodeString(secretKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode hex secret key")
	}
	if len(raw) != 32 {
		return nil, errors.Errorf("secret key is %d bytes, want 32", len(raw))
	}
	return raw, nil
}
