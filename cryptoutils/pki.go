package cryptoutils

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
	"path/filepath"
	"time"
)

// CertAuthority is a throwaway certificate authority for development and
// tests. It signs the KME server certificate and one client certificate per SAE.
type CertAuthority struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey

	// CertPEM is the self-signed CA certificate.
	CertPEM CACert
}

// NewCertAuthority creates a CA with a fresh P-256 key valid for 10 years.
func NewCertAuthority(cn string) (*CertAuthority, error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serialNumber, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"ETSI 014 conformance"},
			CommonName:   cn,
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &CertAuthority{
		cert:    cert,
		key:     caKey,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
	}, nil
}

// SignCSR signs a certificate signing request. The certificate is valid for one
// year for both server and client authentication and keeps the CSR's SANs.
func (ca *CertAuthority) SignCSR(csr TLSCSR) (TLSCert, error) {
	parsedCSR, err := csr.GetX509CSR()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSR: %w", err)
	}

	if err := parsedCSR.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature verification failed: %w", err)
	}

	serialNumber, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               parsedCSR.Subject,
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              parsedCSR.DNSNames,
		IPAddresses:           parsedCSR.IPAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, ca.cert, parsedCSR.PublicKey, ca.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	}), nil
}

// Issue creates a key pair for cn and returns the signed certificate and the
// PKCS#8 private key, both PEM encoded.
func (ca *CertAuthority) Issue(cn string, hosts ...string) (TLSCert, []byte, error) {
	keyPEM, csr, err := CreateCSRWithRandomKey(cn, hosts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CSR: %w", err)
	}

	cert, err := ca.SignCSR(csr)
	if err != nil {
		return nil, nil, err
	}

	return cert, keyPEM, nil
}

func randomSerial() (*big.Int, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serialNumber, nil
}

// DevPKI records where WriteDevPKI placed its files.
type DevPKI struct {
	RootCA     string
	ServerCert string
	ServerKey  string

	// Identities maps an SAE id to a PEM file holding its certificate and key.
	Identities map[string]string
}

// WriteDevPKI creates a CA, a server certificate for hosts and one client
// identity per SAE id, and writes them below dir.
func WriteDevPKI(dir string, hosts []string, saeIDs []string) (*DevPKI, error) {
	ca, err := NewCertAuthority("ETSI 014 conformance dev root")
	if err != nil {
		return nil, err
	}

	out := &DevPKI{
		RootCA:     filepath.Join(dir, "root.crt"),
		ServerCert: filepath.Join(dir, "kme.crt"),
		ServerKey:  filepath.Join(dir, "kme.key"),
		Identities: make(map[string]string, len(saeIDs)),
	}

	if err := os.WriteFile(out.RootCA, ca.CertPEM, 0o644); err != nil {
		return nil, fmt.Errorf("could not write root certificate: %w", err)
	}

	serverCert, serverKey, err := ca.Issue("kme", hosts...)
	if err != nil {
		return nil, fmt.Errorf("could not issue server certificate: %w", err)
	}
	if err := ca.CertPEM.VerifyCertificate(serverCert, x509.ExtKeyUsageServerAuth); err != nil {
		return nil, fmt.Errorf("issued server certificate does not verify: %w", err)
	}
	if err := os.WriteFile(out.ServerCert, serverCert, 0o644); err != nil {
		return nil, fmt.Errorf("could not write server certificate: %w", err)
	}
	if err := os.WriteFile(out.ServerKey, serverKey, 0o600); err != nil {
		return nil, fmt.Errorf("could not write server key: %w", err)
	}

	for _, saeID := range saeIDs {
		cert, key, err := ca.Issue(saeID)
		if err != nil {
			return nil, fmt.Errorf("could not issue identity for %s: %w", saeID, err)
		}
		if err := ca.CertPEM.VerifyCertificate(cert, x509.ExtKeyUsageClientAuth); err != nil {
			return nil, fmt.Errorf("issued identity for %s does not verify: %w", saeID, err)
		}

		path := filepath.Join(dir, filepath.Base(saeID)+".pem")
		if err := os.WriteFile(path, append(cert, key...), 0o600); err != nil {
			return nil, fmt.Errorf("could not write identity for %s: %w", saeID, err)
		}
		out.Identities[saeID] = path
	}

	return out, nil
}
