package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Sealed is the encrypted-at-rest form of a vault. Only the case id is in
// the clear; salt and raw↔token pairs live inside the AES-GCM payload. A
// sealed vault is persisted in a side channel separate from the redacted
// record and narrative, keyed by case id.
type Sealed struct {
	CaseID  string `json:"case_id"`
	Payload []byte `json:"payload"`
}

type sealedBody struct {
	CaseID     string  `json:"case_id"`
	Salt       []byte  `json:"salt"`
	HashLength int     `json:"hash_length"`
	Entries    []Entry `json:"entries"`
}

// deriveKey expands the deployment master key into a per-case key, so a
// leaked case key never unlocks another case's vault.
func deriveKey(masterKey []byte, caseID string) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("empty master key")
	}
	r := hkdf.New(sha256.New, masterKey, []byte("sarforge/vault"), []byte(caseID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}
	return key, nil
}

func newGCM(masterKey []byte, caseID string) (cipher.AEAD, error) {
	key, err := deriveKey(masterKey, caseID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init vault cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal serializes and encrypts the vault under a key derived from the
// master key and the case id. The nonce is prepended to the ciphertext.
func (v *Vault) Seal(masterKey []byte) (Sealed, error) {
	gcm, err := newGCM(masterKey, v.caseID)
	if err != nil {
		return Sealed{}, err
	}

	v.mu.Lock()
	body := sealedBody{
		CaseID:     v.caseID,
		Salt:       append([]byte(nil), v.salt...),
		HashLength: v.hashLength,
	}
	for _, e := range v.reverse {
		body.Entries = append(body.Entries, e)
	}
	v.mu.Unlock()

	plaintext, err := json.Marshal(body)
	if err != nil {
		return Sealed{}, fmt.Errorf("marshal vault: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("generate nonce: %w", err)
	}

	return Sealed{
		CaseID:  v.caseID,
		Payload: gcm.Seal(nonce, nonce, plaintext, []byte(v.caseID)),
	}, nil
}

// Open decrypts a sealed vault and reconstructs the in-memory mapping,
// restoring the original salt so token minting stays consistent for the
// case.
func Open(sealed Sealed, masterKey []byte) (*Vault, error) {
	gcm, err := newGCM(masterKey, sealed.CaseID)
	if err != nil {
		return nil, err
	}
	if len(sealed.Payload) < gcm.NonceSize() {
		return nil, errors.New("sealed vault payload too short")
	}

	nonce := sealed.Payload[:gcm.NonceSize()]
	ciphertext := sealed.Payload[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(sealed.CaseID))
	if err != nil {
		return nil, fmt.Errorf("open sealed vault: %w", err)
	}

	var body sealedBody
	if err := json.Unmarshal(plaintext, &body); err != nil {
		return nil, fmt.Errorf("decode sealed vault: %w", err)
	}

	v, err := New(body.CaseID, WithSalt(body.Salt), WithHashLength(body.HashLength))
	if err != nil {
		return nil, err
	}
	for _, e := range body.Entries {
		v.forward[forwardKey(e.Category, e.Raw)] = e.Token
		v.reverse[e.Token] = e
	}
	return v, nil
}
