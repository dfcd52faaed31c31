// Package ca generates and loads the self-signed certificate authority
// material used to mint per-host leaf certificates for intercepted HTTPS
// connections.
package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

const (
	defaultCommonName = "Warden Proxy CA"
	defaultValidity    = 365 * 24 * time.Hour
)

// SelfSignedCAConfig configures a freshly generated certificate authority.
type SelfSignedCAConfig struct {
	CommonName string
	Validity   time.Duration
}

// WithDefaults fills zero-value fields with their defaults.
func (c SelfSignedCAConfig) WithDefaults() SelfSignedCAConfig {
	if c.CommonName == "" {
		c.CommonName = defaultCommonName
	}
	if c.Validity <= 0 {
		c.Validity = defaultValidity
	}
	return c
}

// Material is a generated or loaded CA: an X.509 certificate (parsed and raw
// DER) plus its private key.
type Material struct {
	Certificate    *x509.Certificate
	CertificateDER []byte
	PrivateKey     *ecdsa.PrivateKey
}

// CertPEM renders the certificate as a PEM block.
func (m Material) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: m.CertificateDER})
}

// KeyPEM renders the private key as a PKCS#8 PEM block.
func (m Material) KeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(m.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("marshal ca private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// GenerateSelfSigned creates a fresh CA keypair and a self-signed,
// IsCA=true certificate good for cfg.Validity (default one year).
func GenerateSelfSigned(cfg SelfSignedCAConfig) (Material, error) {
	cfg = cfg.WithDefaults()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Material{}, fmt.Errorf("generate ca key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Material{}, fmt.Errorf("generate ca serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cfg.CommonName},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(cfg.Validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return Material{}, fmt.Errorf("create ca certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Material{}, fmt.Errorf("parse generated ca certificate: %w", err)
	}

	return Material{Certificate: cert, CertificateDER: der, PrivateKey: key}, nil
}

// CertSourceKind selects where CertInput bytes come from.
type CertSourceKind int

const (
	// SourceFile reads bytes from a filesystem path.
	SourceFile CertSourceKind = iota
	// SourceBytes wraps bytes already in memory.
	SourceBytes
	// SourceSystem looks up a certificate in the host trust store by
	// common name. Not valid as a private key source.
	SourceSystem
)

// CertInput names where to load certificate or key bytes from.
type CertInput struct {
	Kind  CertSourceKind
	Path  string // SourceFile
	Bytes []byte // SourceBytes
	Name  string // SourceSystem
}

// FileCertInput builds a CertInput that reads path from disk.
func FileCertInput(path string) CertInput { return CertInput{Kind: SourceFile, Path: path} }

// BytesCertInput builds a CertInput wrapping an in-memory byte slice.
func BytesCertInput(b []byte) CertInput { return CertInput{Kind: SourceBytes, Bytes: b} }

// SystemCertInput builds a CertInput that looks up a trust-store entry by
// common name. Only valid for certificates, never for private keys.
func SystemCertInput(commonName string) CertInput { return CertInput{Kind: SourceSystem, Name: commonName} }

// LoadCert resolves src to raw bytes (usually PEM, sometimes DER), performing
// no format conversion itself.
func LoadCert(src CertInput) ([]byte, error) {
	switch src.Kind {
	case SourceFile:
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("read certificate file %s: %w", src.Path, err)
		}
		return b, nil
	case SourceBytes:
		return src.Bytes, nil
	case SourceSystem:
		b, ok := systemCertByCommonName(src.Name)
		if !ok {
			return nil, fmt.Errorf("no system certificate found with CN=%q", src.Name)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown cert source kind %d", src.Kind)
	}
}

// LoadCAFromSources builds Material from a certificate source and a private
// key source. The certificate is tried as DER first, then PEM. The key is
// tried as PEM first, then DER. key must not be a SourceSystem input.
func LoadCAFromSources(certSrc, keySrc CertInput) (Material, error) {
	certBytes, err := LoadCert(certSrc)
	if err != nil {
		return Material{}, err
	}

	cert, der, err := parseCertificateDEROrPEM(certBytes)
	if err != nil {
		return Material{}, fmt.Errorf("parse ca certificate: %w", err)
	}

	if keySrc.Kind == SourceSystem {
		return Material{}, fmt.Errorf("cannot load a private key from a system trust-store entry: %s", keySrc.Name)
	}
	keyBytes, err := LoadCert(keySrc)
	if err != nil {
		return Material{}, err
	}

	key, err := parseECDSAKeyPEMOrDER(keyBytes)
	if err != nil {
		return Material{}, fmt.Errorf("parse ca private key: %w", err)
	}

	return Material{Certificate: cert, CertificateDER: der, PrivateKey: key}, nil
}

func parseCertificateDEROrPEM(b []byte) (*x509.Certificate, []byte, error) {
	if cert, err := x509.ParseCertificate(b); err == nil {
		return cert, b, nil
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, nil, fmt.Errorf("not a valid DER or PEM certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, err
	}
	return cert, block.Bytes, nil
}

func parseECDSAKeyPEMOrDER(b []byte) (*ecdsa.PrivateKey, error) {
	der := b
	if block, _ := pem.Decode(b); block != nil {
		der = block.Bytes
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := generic.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not ECDSA")
	}
	return key, nil
}
