// Package signingtest issues App Store style signed payloads for tests: an
// ECDSA P-256 root, intermediate and leaf, and ES256 tokens carrying the
// chain in their x5c header.
package signingtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// DefaultBundleID is used when a payload names no bundle.
const DefaultBundleID = "com.example.app"

var (
	notBefore = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter  = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Authority signs tokens with a generated certificate chain.
type Authority struct {
	Root  *x509.Certificate
	Roots *x509.CertPool

	key   *ecdsa.PrivateKey
	chain []string
}

// NewAuthority generates a fresh root, intermediate and leaf.
func NewAuthority(t testing.TB) *Authority {
	t.Helper()

	rootKey := newKey(t)
	root := issue(t, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}, nil, rootKey, nil)

	intermediateKey := newKey(t)
	intermediate := issue(t, &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "Test Intermediate CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}, root, intermediateKey, rootKey)

	leafKey := newKey(t)
	leaf := issue(t, &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "Test Signing Leaf"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}, intermediate, leafKey, intermediateKey)

	roots := x509.NewCertPool()
	roots.AddCert(root)

	return &Authority{
		Root:  root,
		Roots: roots,
		key:   leafKey,
		chain: []string{
			base64.StdEncoding.EncodeToString(leaf.Raw),
			base64.StdEncoding.EncodeToString(intermediate.Raw),
			base64.StdEncoding.EncodeToString(root.Raw),
		},
	}
}

// WriteRootPEM writes the root certificate to a PEM file under t.TempDir.
func (a *Authority) WriteRootPEM(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "root.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.Root.Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// Sign signs claims as an ES256 JWS with the chain in x5c.
func (a *Authority) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["x5c"] = a.chain
	signed, err := token.SignedString(a.key)
	require.NoError(t, err)
	return signed
}

// Transaction describes a signed transaction payload.
type Transaction struct {
	TransactionID         string
	OriginalTransactionID string
	ProductID             string
	AppAccountToken       string
	BundleID              string
	Environment           string
	PurchaseDate          time.Time
	ExpiresDate           *time.Time
	RevocationDate        *time.Time
	SignedDate            time.Time
}

// SignTransaction signs tx as a signedTransactionInfo token.
func (a *Authority) SignTransaction(t testing.TB, tx Transaction) string {
	t.Helper()
	claims := jwt.MapClaims{
		"transactionId":         tx.TransactionID,
		"originalTransactionId": tx.OriginalTransactionID,
		"bundleId":              orDefault(tx.BundleID, DefaultBundleID),
		"productId":             tx.ProductID,
		"purchaseDate":          tx.PurchaseDate.UnixMilli(),
		"type":                  "Auto-Renewable Subscription",
		"environment":           orDefault(tx.Environment, "Sandbox"),
		"signedDate":            signedDate(tx.SignedDate, tx.PurchaseDate),
	}
	if tx.AppAccountToken != "" {
		claims["appAccountToken"] = tx.AppAccountToken
	}
	if tx.ExpiresDate != nil {
		claims["expiresDate"] = tx.ExpiresDate.UnixMilli()
	}
	if tx.RevocationDate != nil {
		claims["revocationDate"] = tx.RevocationDate.UnixMilli()
	}
	return a.Sign(t, claims)
}

// Notification describes a signed notification envelope.
type Notification struct {
	Type                  string
	Subtype               string
	UUID                  string
	BundleID              string
	Environment           string
	SignedDate            time.Time
	SignedTransactionInfo string
	SignedRenewalInfo     string
}

// SignNotification signs n as a signedPayload token.
func (a *Authority) SignNotification(t testing.TB, n Notification) string {
	t.Helper()
	data := jwt.MapClaims{
		"environment": orDefault(n.Environment, "Sandbox"),
		"bundleId":    orDefault(n.BundleID, DefaultBundleID),
	}
	if n.SignedTransactionInfo != "" {
		data["signedTransactionInfo"] = n.SignedTransactionInfo
	}
	if n.SignedRenewalInfo != "" {
		data["signedRenewalInfo"] = n.SignedRenewalInfo
	}
	claims := jwt.MapClaims{
		"notificationType": n.Type,
		"notificationUUID": n.UUID,
		"version":          "2.0",
		"signedDate":       signedDate(n.SignedDate, time.Time{}),
		"data":             data,
	}
	if n.Subtype != "" {
		claims["subtype"] = n.Subtype
	}
	return a.Sign(t, claims)
}

// SignRenewalInfo signs a signedRenewalInfo token.
func (a *Authority) SignRenewalInfo(t testing.TB, originalTransactionID, productID string, autoRenew bool, signedAt time.Time) string {
	t.Helper()
	status := 0
	if autoRenew {
		status = 1
	}
	return a.Sign(t, jwt.MapClaims{
		"originalTransactionId": originalTransactionID,
		"autoRenewProductId":    productID,
		"autoRenewStatus":       status,
		"productId":             productID,
		"environment":           "Sandbox",
		"signedDate":            signedDate(signedAt, time.Time{}),
	})
}

func signedDate(signedAt, fallback time.Time) int64 {
	if !signedAt.IsZero() {
		return signedAt.UnixMilli()
	}
	if !fallback.IsZero() {
		return fallback.UnixMilli()
	}
	return notBefore.UnixMilli()
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func issue(t testing.TB, template, parent *x509.Certificate, key, parentKey *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	if parent == nil {
		parent = template
		parentKey = key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}
