package cryptoutils

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// TLSCSR represents a TLS Certificate Signing Request in PEM format.
type TLSCSR []byte

// GetX509CSR returns the parsed X.509 certificate request.
func (csr TLSCSR) GetX509CSR() (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csr)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, errors.New("invalid CSR: not in PEM format or not a certificate request")
	}
	return x509.ParseCertificateRequest(block.Bytes)
}

// TLSCert represents a TLS Certificate in PEM format.
type TLSCert []byte

// GetX509Cert returns the first certificate of the PEM data.
func (cert TLSCert) GetX509Cert() (*x509.Certificate, error) {
	return firstCertificate(cert)
}

// IsExpired checks if the certificate has expired.
func (cert TLSCert) IsExpired() (bool, error) {
	x509Cert, err := cert.GetX509Cert()
	if err != nil {
		return false, err
	}
	return x509Cert.NotAfter.Before(time.Now()), nil
}

// CACert represents a Certificate Authority Certificate in PEM format.
type CACert []byte

// NewCACert validates that data holds at least one CA certificate.
func NewCACert(data []byte) (CACert, error) {
	cert, err := firstCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("invalid CA certificate: %w", err)
	}

	if !cert.IsCA {
		return nil, errors.New("certificate is not a CA certificate (IsCA flag not set)")
	}

	return CACert(data), nil
}

// CertPool returns a pool holding every certificate of the PEM data.
func (ca CACert) CertPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, errors.New("no certificate found in CA PEM data")
	}
	return pool, nil
}

// VerifyCertificate checks if a certificate was signed by this CA.
func (ca CACert) VerifyCertificate(cert TLSCert, usage x509.ExtKeyUsage) error {
	pool, err := ca.CertPool()
	if err != nil {
		return err
	}

	leafCert, err := cert.GetX509Cert()
	if err != nil {
		return err
	}

	_, err = leafCert.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{usage},
	})
	return err
}

func firstCertificate(data []byte) (*x509.Certificate, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no CERTIFICATE PEM block found")
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}
