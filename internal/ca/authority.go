package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Authority mints a TLS server certificate for a given host, signed by a CA.
// Real is backed by generated or loaded Material; NoCa exists purely so a
// no-certificate proxy configuration still has something to hand the TLS
// layer that satisfies the interface, and must never actually be called.
type Authority interface {
	CertificateFor(host string) (*tls.Certificate, error)
}

// Real signs leaf certificates on demand and caches them per host so a
// repeated connection to the same host reuses the same leaf.
type Real struct {
	ca Material

	mu    sync.Mutex
	cache map[string]*tls.Certificate
}

// NewAuthority wraps ca material as a live signer.
func NewAuthority(material Material) *Real {
	return &Real{ca: material, cache: make(map[string]*tls.Certificate)}
}

// CertificateFor returns a leaf certificate for host, signing and caching a
// new one on first request.
func (r *Real) CertificateFor(host string) (*tls.Certificate, error) {
	r.mu.Lock()
	if cert, ok := r.cache[host]; ok {
		r.mu.Unlock()
		return cert, nil
	}
	r.mu.Unlock()

	cert, err := r.signLeaf(host)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[host] = cert
	r.mu.Unlock()
	return cert, nil
}

func (r *Real) signLeaf(host string) (*tls.Certificate, error) {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate leaf key for %s: %w", host, err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate leaf serial for %s: %w", host, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    now.Add(-5 * time.Minute),
		NotAfter:     now.Add(7 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, r.ca.Certificate, &leafKey.PublicKey, r.ca.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign leaf certificate for %s: %w", host, err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der, r.ca.CertificateDER},
		PrivateKey:  leafKey,
	}, nil
}

// NoCa is the certificate authority used when CA material is disabled.
// gen_ca style commands and MITM interception both stay off in that mode,
// so CertificateFor is never expected to be invoked; it panics instead of
// failing silently if that invariant is ever broken upstream.
type NoCa struct{}

// CertificateFor always panics. Callers must gate interception on whether
// CA material is configured before reaching for an Authority at all.
func (NoCa) CertificateFor(host string) (*tls.Certificate, error) {
	panic("ca: NoCa.CertificateFor must never be called")
}
