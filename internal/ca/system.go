package ca

import (
	"crypto/x509"
	"encoding/pem"
	"os"
)

// systemCertFiles lists the well-known locations of the platform trust
// bundle on the targets this proxy actually runs on. There is no portable
// stdlib API to enumerate individual system certificates (x509.CertPool
// only supports membership checks), so this mirrors what distro packagers
// and most Go TLS libraries assume.
var systemCertFiles = []string{
	"/etc/ssl/certs/ca-certificates.crt", // Debian/Ubuntu
	"/etc/pki/tls/certs/ca-bundle.crt",   // RHEL/Fedora
	"/etc/ssl/cert.pem",                  // Alpine, macOS (via openssl)
}

// systemCertByCommonName scans the platform trust bundle for a certificate
// whose subject common name matches name.
func systemCertByCommonName(name string) ([]byte, bool) {
	for _, path := range systemCertFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
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
				continue
			}
			if cert.Subject.CommonName == name {
				return pem.EncodeToMemory(block), true
			}
		}
	}
	return nil, false
}
