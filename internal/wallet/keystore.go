package wallet

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/datatypes"

	"tradegate/internal/config"
	"tradegate/internal/models"
	"tradegate/internal/repository"
)

const (
	SettingsKeyEnv     = "TG_SETTINGS_ENCRYPTION_KEY"
	SettingsPrevKeyEnv = "TG_SETTINGS_ENCRYPTION_PREV_KEY"

	envelopeVersion = "aes-gcm-v1"
)

var ErrNoEncryptionKey = errors.New("wallet: settings encryption key not configured")

type envelope struct {
	Enc   string `json:"enc"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// SecretBox seals setting values with AES-GCM. The setting key is bound as
// additional data so a ciphertext cannot be replayed under another key. The
// previous key is only ever used to open.
type SecretBox struct {
	primary cipher.AEAD
	all     []cipher.AEAD
}

// NewSecretBoxFromEnv reads the primary and previous keys from the
// environment. Keys may be base64 or raw; at least 16 bytes are required.
func NewSecretBoxFromEnv() (*SecretBox, error) {
	return NewSecretBox(os.Getenv(SettingsKeyEnv), os.Getenv(SettingsPrevKeyEnv))
}

func NewSecretBox(primary, previous string) (*SecretBox, error) {
	box := &SecretBox{}
	seen := map[string]struct{}{}
	for i, raw := range []string{primary, previous} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		gcm, err := newGCM(parseBoxKey(raw))
		if err != nil {
			return nil, err
		}
		if i == 0 {
			box.primary = gcm
		}
		box.all = append(box.all, gcm)
	}
	if box.primary == nil {
		return nil, ErrNoEncryptionKey
	}
	return box, nil
}

func (b *SecretBox) Seal(settingKey string, plain []byte) ([]byte, error) {
	if b == nil || b.primary == nil {
		return nil, ErrNoEncryptionKey
	}
	nonce := make([]byte, b.primary.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := b.primary.Seal(nil, nonce, plain, additionalData(settingKey))
	return json.Marshal(envelope{
		Enc:   envelopeVersion,
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ct),
	})
}

func (b *SecretBox) Open(settingKey string, sealed []byte) ([]byte, error) {
	if b == nil || len(b.all) == 0 {
		return nil, ErrNoEncryptionKey
	}
	var env envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		return nil, fmt.Errorf("wallet: sealed value: %w", err)
	}
	if env.Enc != envelopeVersion || env.Nonce == "" || env.Data == "" {
		return nil, fmt.Errorf("wallet: sealed value has unknown format")
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("wallet: nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("wallet: ciphertext: %w", err)
	}
	for _, gcm := range b.all {
		if len(nonce) != gcm.NonceSize() {
			continue
		}
		if pt, err := gcm.Open(nil, nonce, ct, additionalData(settingKey)); err == nil {
			return pt, nil
		}
	}
	return nil, fmt.Errorf("wallet: no configured key opens %q", settingKey)
}

// LoadKey returns the hex signing key, preferring the environment over the
// encrypted setting. ErrNoKey means neither source had one.
func LoadKey(ctx context.Context, cfg config.WalletConfig, settings repository.SettingsRepository, box *SecretBox) (string, error) {
	envName := strings.TrimSpace(cfg.KeyEnv)
	if envName == "" {
		envName = "TG_WALLET_PRIVATE_KEY"
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	if settings == nil {
		return "", ErrNoKey
	}
	item, err := settings.GetSystemSettingByKey(ctx, settingKey(cfg))
	if err != nil {
		return "", fmt.Errorf("wallet: read key setting: %w", err)
	}
	if item == nil || len(item.Value) == 0 {
		return "", ErrNoKey
	}
	if box == nil {
		return "", ErrNoEncryptionKey
	}
	plain, err := box.Open(settingKey(cfg), item.Value)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(plain)), nil
}

// StoreKey validates hexKey and writes it sealed under the configured setting.
// It returns the wallet address the key controls.
func StoreKey(ctx context.Context, cfg config.WalletConfig, settings repository.SettingsRepository, box *SecretBox, hexKey string) (string, error) {
	key, err := parsePrivateKey(hexKey)
	if err != nil {
		return "", err
	}
	sealed, err := box.Seal(settingKey(cfg), []byte(strings.TrimSpace(hexKey)))
	if err != nil {
		return "", err
	}
	if err := settings.UpsertSystemSetting(ctx, &models.SystemSetting{
		Key:         settingKey(cfg),
		Value:       datatypes.JSON(sealed),
		Description: "encrypted wallet signing key",
	}); err != nil {
		return "", fmt.Errorf("wallet: store key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	(&Signer{key: key}).Close()
	return addr, nil
}

func settingKey(cfg config.WalletConfig) string {
	if k := strings.TrimSpace(cfg.SettingKey); k != "" {
		return k
	}
	return "wallet.private_key"
}

func additionalData(settingKey string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(settingKey)))
}

func parseBoxKey(k string) []byte {
	keyBytes, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		keyBytes = []byte(k)
	}
	switch {
	case len(keyBytes) >= 32:
		return keyBytes[:32]
	case len(keyBytes) >= 24:
		return keyBytes[:24]
	case len(keyBytes) >= 16:
		return keyBytes[:16]
	default:
		return nil
	}
}

func newGCM(keyBytes []byte) (cipher.AEAD, error) {
	if len(keyBytes) == 0 {
		return nil, fmt.Errorf("wallet: encryption key must be at least 16 bytes")
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
