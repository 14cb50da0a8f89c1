package services

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"entitlement-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultMaxSkew bounds how far in the future a payload's signedDate may be.
const DefaultMaxSkew = 5 * time.Minute

// Verified certificates are cached for certCacheTTL, at most certCacheSize at a time.
const (
	certCacheTTL  = 24 * time.Hour
	certCacheSize = 64
)

// SignatureVerifier App Store 签名验证器
//
// It verifies JWS tokens (ES256, certificate chain in the x5c header) against
// a pinned set of root certificates, then decodes the payload.
type SignatureVerifier struct {
	roots       *x509.CertPool
	now         func() time.Time
	maxSkew     time.Duration
	bundleID    string
	environment string
	parser      *jwt.Parser

	certCache map[string]*x509.Certificate
	cachedAt  time.Time
	mutex     sync.RWMutex
}

// VerifierOption configures a SignatureVerifier.
type VerifierOption func(*SignatureVerifier)

// WithClock sets the clock used for certificate validity and signedDate checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *SignatureVerifier) { v.now = now }
}

// WithMaxSkew sets the allowed clock skew for signedDate.
func WithMaxSkew(d time.Duration) VerifierOption {
	return func(v *SignatureVerifier) { v.maxSkew = d }
}

// WithBundleID rejects transactions and notifications issued for another app.
// An empty id accepts any bundle.
func WithBundleID(bundleID string) VerifierOption {
	return func(v *SignatureVerifier) { v.bundleID = bundleID }
}

// WithEnvironment rejects payloads from the other App Store environment.
// An empty environment accepts both.
func WithEnvironment(environment string) VerifierOption {
	return func(v *SignatureVerifier) { v.environment = environment }
}

// NewSignatureVerifier 创建新的签名验证器
func NewSignatureVerifier(roots *x509.CertPool, opts ...VerifierOption) *SignatureVerifier {
	v := &SignatureVerifier{
		roots:     roots,
		now:       time.Now,
		maxSkew:   DefaultMaxSkew,
		certCache: make(map[string]*x509.Certificate),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	return v
}

// LoadRootCertificates reads trusted root certificates from PEM or DER files.
func LoadRootCertificates(paths []string) (*x509.CertPool, error) {
	if len(paths) == 0 {
		return nil, errors.New("no root certificate paths")
	}
	pool := x509.NewCertPool()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read root certificate %s: %w", path, err)
		}
		certs, err := parseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("parse root certificate %s: %w", path, err)
		}
		for _, cert := range certs {
			pool.AddCert(cert)
		}
	}
	return pool, nil
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if len(certs) > 0 {
		return certs, nil
	}

	// Apple distributes its roots as DER
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, err
	}
	return []*x509.Certificate{cert}, nil
}

type transactionClaims struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate,omitempty"`
	RevocationDate        int64  `json:"revocationDate,omitempty"`
	Type                  string `json:"type"`
	AppAccountToken       string `json:"appAccountToken,omitempty"`
	Environment           string `json:"environment"`
	Price                 int64  `json:"price,omitempty"`
	Currency              string `json:"currency,omitempty"`
	SignedDate            int64  `json:"signedDate"`
	jwt.RegisteredClaims
}

type renewalInfoClaims struct {
	OriginalTransactionID string `json:"originalTransactionId"`
	AutoRenewProductID    string `json:"autoRenewProductId"`
	AutoRenewStatus       int    `json:"autoRenewStatus"`
	ProductID             string `json:"productId"`
	Environment           string `json:"environment"`
	SignedDate            int64  `json:"signedDate"`
	jwt.RegisteredClaims
}

type notificationClaims struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype,omitempty"`
	NotificationUUID string `json:"notificationUUID"`
	Version          string `json:"version"`
	SignedDate       int64  `json:"signedDate"`
	Data             struct {
		Environment           string `json:"environment"`
		BundleID              string `json:"bundleId"`
		SignedTransactionInfo string `json:"signedTransactionInfo"`
		SignedRenewalInfo     string `json:"signedRenewalInfo,omitempty"`
	} `json:"data"`
	jwt.RegisteredClaims
}

// DecodeTransaction verifies a signed transaction and returns its fields.
func (v *SignatureVerifier) DecodeTransaction(token string) (*models.Transaction, error) {
	var claims transactionClaims
	if err := v.parse(token, &claims); err != nil {
		return nil, err
	}
	if err := v.checkSignedDate(claims.SignedDate); err != nil {
		return nil, err
	}
	if claims.OriginalTransactionID == "" {
		return nil, fmt.Errorf("%w: transaction has no originalTransactionId", ErrSignatureInvalid)
	}
	if err := v.checkIssuer(claims.BundleID, claims.Environment); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		TransactionID:         claims.TransactionID,
		OriginalTransactionID: claims.OriginalTransactionID,
		ProductID:             claims.ProductID,
		BundleID:              claims.BundleID,
		Type:                  claims.Type,
		Environment:           claims.Environment,
		PurchaseDate:          fromMillis(claims.PurchaseDate),
		AppAccountToken:       claims.AppAccountToken,
		Price:                 claims.Price,
		Currency:              claims.Currency,
		SignedDate:            fromMillis(claims.SignedDate),
	}
	if tx.TransactionID == "" {
		tx.TransactionID = tx.OriginalTransactionID
	}
	if claims.ExpiresDate > 0 {
		expires := fromMillis(claims.ExpiresDate)
		tx.ExpiresDate = &expires
	}
	if claims.RevocationDate > 0 {
		revoked := fromMillis(claims.RevocationDate)
		tx.RevocationDate = &revoked
	}
	return tx, nil
}

// DecodeRenewalInfo verifies a signed renewal info payload.
func (v *SignatureVerifier) DecodeRenewalInfo(token string) (*models.RenewalInfo, error) {
	var claims renewalInfoClaims
	if err := v.parse(token, &claims); err != nil {
		return nil, err
	}
	if err := v.checkSignedDate(claims.SignedDate); err != nil {
		return nil, err
	}
	return &models.RenewalInfo{
		OriginalTransactionID: claims.OriginalTransactionID,
		AutoRenewProductID:    claims.AutoRenewProductID,
		AutoRenewStatus:       claims.AutoRenewStatus,
		ProductID:             claims.ProductID,
		Environment:           claims.Environment,
		SignedDate:            fromMillis(claims.SignedDate),
	}, nil
}

// DecodeNotification verifies the outer notification envelope. The embedded
// transaction and renewal tokens are returned still signed.
func (v *SignatureVerifier) DecodeNotification(token string) (*models.Notification, error) {
	var claims notificationClaims
	if err := v.parse(token, &claims); err != nil {
		return nil, err
	}
	if err := v.checkSignedDate(claims.SignedDate); err != nil {
		return nil, err
	}
	if err := v.checkIssuer(claims.Data.BundleID, claims.Data.Environment); err != nil {
		return nil, err
	}
	return &models.Notification{
		Type:                  models.ParseNotificationType(claims.NotificationType),
		RawType:               claims.NotificationType,
		Subtype:               claims.Subtype,
		NotificationUUID:      claims.NotificationUUID,
		Version:               claims.Version,
		SignedDate:            fromMillis(claims.SignedDate),
		Environment:           claims.Data.Environment,
		BundleID:              claims.Data.BundleID,
		SignedTransactionInfo: claims.Data.SignedTransactionInfo,
		SignedRenewalInfo:     claims.Data.SignedRenewalInfo,
	}, nil
}

func (v *SignatureVerifier) parse(token string, claims jwt.Claims) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrSignatureInvalid)
	}
	if _, err := v.parser.ParseWithClaims(token, claims, v.keyFunc); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// checkSignedDate rejects payloads without a signedDate or signed in the future.
func (v *SignatureVerifier) checkSignedDate(signedDate int64) error {
	if signedDate <= 0 {
		return fmt.Errorf("%w: missing signedDate", ErrSignatureInvalid)
	}
	signedAt := fromMillis(signedDate)
	if signedAt.After(v.now().Add(v.maxSkew)) {
		return fmt.Errorf("%w: signedDate %s is in the future", ErrSignatureInvalid, signedAt.Format(time.RFC3339))
	}
	return nil
}

// checkIssuer rejects payloads for another bundle or environment.
func (v *SignatureVerifier) checkIssuer(bundleID, environment string) error {
	if v.bundleID != "" && bundleID != v.bundleID {
		return fmt.Errorf("%w: bundleId %q is not %q", ErrSignatureInvalid, bundleID, v.bundleID)
	}
	if v.environment != "" && environment != v.environment {
		return fmt.Errorf("%w: environment %q is not %q", ErrSignatureInvalid, environment, v.environment)
	}
	return nil
}

// keyFunc verifies the x5c chain up to a pinned root and returns the leaf key.
// Only chains that verify are cached.
func (v *SignatureVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	encoded, err := x5cEntries(token.Header["x5c"])
	if err != nil {
		return nil, err
	}
	chain, err := v.getCertificateChain(encoded)
	if err != nil {
		return nil, err
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	leaf := chain[0]
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("verify certificate chain: %w", err)
	}
	v.cacheCertificates(encoded, chain)

	publicKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not contain ECDSA public key")
	}
	return publicKey, nil
}

func x5cEntries(header interface{}) ([]string, error) {
	entries, ok := header.([]interface{})
	if !ok || len(entries) == 0 {
		return nil, errors.New("missing x5c header")
	}
	encoded := make([]string, 0, len(entries))
	for i, entry := range entries {
		value, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("x5c entry %d is not a string", i)
		}
		encoded = append(encoded, value)
	}
	return encoded, nil
}

// getCertificateChain 获取证书链
func (v *SignatureVerifier) getCertificateChain(encoded []string) ([]*x509.Certificate, error) {
	certificates := make([]*x509.Certificate, 0, len(encoded))
	for i, entry := range encoded {
		// 检查缓存
		if cert, ok := v.cachedCertificate(entry); ok {
			certificates = append(certificates, cert)
			continue
		}

		der, err := base64.StdEncoding.DecodeString(entry)
		if err != nil {
			return nil, fmt.Errorf("decode x5c entry %d: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse x5c entry %d: %w", i, err)
		}
		certificates = append(certificates, cert)
	}
	return certificates, nil
}

func (v *SignatureVerifier) cachedCertificate(encoded string) (*x509.Certificate, bool) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	if v.now().Sub(v.cachedAt) > certCacheTTL {
		return nil, false
	}
	cert, ok := v.certCache[encoded]
	return cert, ok
}

// cacheCertificates 缓存证书
//
// The cache starts over once it is full or stale.
func (v *SignatureVerifier) cacheCertificates(encoded []string, chain []*x509.Certificate) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	now := v.now()
	if now.Sub(v.cachedAt) > certCacheTTL || len(v.certCache)+len(chain) > certCacheSize {
		v.certCache = make(map[string]*x509.Certificate, len(chain))
		v.cachedAt = now
	}
	for i, cert := range chain {
		v.certCache[encoded[i]] = cert
	}
}

// ClearCache 清除证书缓存
func (v *SignatureVerifier) ClearCache() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.certCache = make(map[string]*x509.Certificate)
	v.cachedAt = time.Time{}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
