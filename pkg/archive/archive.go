// Package archive persists the tamper-evident window receipt described in
// §9.4 of SPEC_FULL.md: a JSON summary of a finalized revenue window
// (totals, exclusions, adjustments) plus a detached JWS signature, written
// to object storage so downstream audit tooling can verify the summary was
// not altered after the fact.
package archive

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/gosimple/slug"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"integrity-core/pkg/config"
)

// WindowReceipt is the signed summary archived for one finalize_revenue_window
// run.
type WindowReceipt struct {
	WindowStart       time.Time       `json:"window_start"`
	WindowEnd         time.Time       `json:"window_end"`
	PaymentType       string          `json:"payment_type"`
	GrossPoolCents    int64           `json:"gross_pool_cents"`
	DistributedCents  int64           `json:"distributed_cents"`
	PlatformFeeCents  int64           `json:"platform_fee_cents"`
	RiskReserveCents  int64           `json:"risk_reserve_cents"`
	QualityAdjustment float64         `json:"quality_pool_adjustment"`
	ExcludedCreators  []string        `json:"excluded_creators"`
	OverflowRounds    int             `json:"overflow_rounds"`
	GeneratedAt       time.Time       `json:"generated_at"`
	Extra             json.RawMessage `json:"extra,omitempty"`
}

// Signer produces a detached JWS over a WindowReceipt using an RSA signing
// key. Signer is intentionally storage-agnostic; Archiver composes it with
// MinIO to land both the payload and signature.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner builds a Signer from an already-loaded RSA private key. The
// package's fx Module loads the key through NewSignerFromConfig instead.
func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// Sign returns the canonical JSON encoding of the receipt and its detached
// compact JWS signature.
func (s *Signer) Sign(receipt WindowReceipt) (payload []byte, signature string, err error) {
	payload, err = json.Marshal(receipt)
	if err != nil {
		return nil, "", fmt.Errorf("archive: marshal receipt: %w", err)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: s.key}, nil)
	if err != nil {
		return nil, "", fmt.Errorf("archive: build signer: %w", err)
	}

	obj, err := signer.Sign(payload)
	if err != nil {
		return nil, "", fmt.Errorf("archive: sign receipt: %w", err)
	}

	compact, err := obj.CompactSerialize()
	if err != nil {
		return nil, "", fmt.Errorf("archive: serialize signature: %w", err)
	}

	return payload, compact, nil
}

// GenerateDevKey produces an ephemeral RSA key for local development and
// tests, where no Vault-managed signing key is configured.
func GenerateDevKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

// LoadSigningKey reads the PEM-encoded RSA private key named by
// config.Config.ReceiptSigningKeyPath. An unset path falls back to an
// ephemeral key, which is only acceptable outside production since its
// signatures are not verifiable across restarts.
func LoadSigningKey(cfg *config.Config) (*rsa.PrivateKey, error) {
	if cfg.ReceiptSigningKeyPath == "" {
		zap.L().Warn("no receipt signing key configured, generating an ephemeral key")
		return GenerateDevKey()
	}

	data, err := os.ReadFile(cfg.ReceiptSigningKeyPath)
	if err != nil {
		return nil, fmt.Errorf("archive: read signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("archive: no PEM block found in signing key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("archive: parse signing key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("archive: signing key is not RSA")
	}
	return rsaKey, nil
}

// Archiver writes signed window receipts to object storage.
type Archiver struct {
	client *minio.Client
	bucket string
	signer *Signer
}

type Params struct {
	fx.In

	Client *minio.Client
	Config *config.Config
	Signer *Signer
}

var Module = fx.Module("archive", fx.Provide(New, NewSignerFromConfig))

// NewSignerFromConfig resolves the signing key named by config.Config and
// wraps it as a Signer, for fx wiring.
func NewSignerFromConfig(cfg *config.Config) (*Signer, error) {
	key, err := LoadSigningKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

func New(p Params) *Archiver {
	return &Archiver{client: p.Client, bucket: p.Config.Minio.BucketName, signer: p.Signer}
}

// Put signs receipt and uploads both the payload and its detached
// signature under a key derived from the window's identity, returning the
// object key the payload was stored under.
func (a *Archiver) Put(ctx context.Context, receipt WindowReceipt) (string, error) {
	payload, signature, err := a.signer.Sign(receipt)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("revenue-windows/%s/%s-%s.json",
		slug.Make(receipt.PaymentType),
		receipt.WindowStart.UTC().Format("20060102T150405Z"),
		receipt.WindowEnd.UTC().Format("20060102T150405Z"),
	)

	if _, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("archive: put receipt: %w", err)
	}

	sigKey := key + ".jws"
	sigBytes := []byte(signature)
	if _, err := a.client.PutObject(ctx, a.bucket, sigKey, bytes.NewReader(sigBytes), int64(len(sigBytes)),
		minio.PutObjectOptions{ContentType: "application/jose"}); err != nil {
		return "", fmt.Errorf("archive: put signature: %w", err)
	}

	zap.L().Info("archived window receipt", zap.String("key", key), zap.String("payment_type", receipt.PaymentType))
	return key, nil
}
