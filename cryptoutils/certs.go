package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"net"
	"os"
)

// LoadRootPool reads the trust anchor every KME certificate is validated against.
func LoadRootPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read root certificate: %w", err)
	}

	pool, err := CACert(data).CertPool()
	if err != nil {
		return nil, fmt.Errorf("could not parse root certificate %s: %w", path, err)
	}

	return pool, nil
}

// LoadKeyPair loads an SAE identity. When keyPath is empty the certificate file
// must carry the private key as well, the way identity PEM bundles usually do.
func LoadKeyPair(certPath, keyPath string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("could not read certificate: %w", err)
	}

	keyPEM := certPEM
	if keyPath != "" {
		keyPEM, err = os.ReadFile(keyPath)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("could not read private key: %w", err)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("could not parse identity %s: %w", certPath, err)
	}

	expired, err := TLSCert(certPEM).IsExpired()
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("could not parse identity %s: %w", certPath, err)
	}
	if expired {
		return tls.Certificate{}, fmt.Errorf("certificate %s has expired", certPath)
	}

	if cert.Leaf == nil {
		cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("could not parse leaf certificate: %w", err)
		}
	}

	return cert, nil
}

// CreateCSRWithRandomKey generates a new ECDSA key pair and creates a Certificate Signing Request (CSR)
// with the specified Common Name (CN). Hosts are added as IP or DNS subject alternative names.
//
// Returns:
//   - Private key in PEM format
//   - CSR in PEM format
//   - Error if key generation or CSR creation fails
func CreateCSRWithRandomKey(cn string, hosts ...string) ([]byte, TLSCSR, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	csrTemplate := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName: cn,
		},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			csrTemplate.IPAddresses = append(csrTemplate.IPAddresses, ip)
		} else {
			csrTemplate.DNSNames = append(csrTemplate.DNSNames, h)
		}
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &csrTemplate, privateKey)
	if err != nil {
		return nil, nil, err
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyBytes})
	return keyPEM, TLSCSR(csrPEM), nil
}

// PeerCommonName returns the subject CN of the verified client certificate of a
// TLS connection, or false when the peer did not authenticate.
func PeerCommonName(state *tls.ConnectionState) (string, bool) {
	if state == nil || len(state.PeerCertificates) == 0 {
		return "", false
	}
	return state.PeerCertificates[0].Subject.CommonName, true
}
