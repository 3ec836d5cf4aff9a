// Package tls bootstraps a self-signed certificate for local HTTPS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
)

// certificateLifetime is how long a generated certificate is valid
const certificateLifetime = 365 * 24 * time.Hour

// DefaultHosts are the names a generated certificate covers when none are given
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// EnsureCertificate keeps a usable certificate pair in place. An existing pair
// that loads is kept; a missing or broken one is regenerated for hosts.
func EnsureCertificate(certFile, keyFile string, hosts ...string) error {
	if _, err := cryptotls.LoadX509KeyPair(certFile, keyFile); err == nil {
		glog.Infof("Using existing certificate files")
		return nil
	} else if !os.IsNotExist(err) {
		glog.Warningf("Existing certificate unusable, regenerating: %v", err)
	}

	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	return generateSelfSignedCert(certFile, keyFile, hosts)
}

// generateSelfSignedCert creates a self-signed ECDSA certificate and key
func generateSelfSignedCert(certFile, keyFile string, hosts []string) error {
	glog.Infof("Generating self-signed certificate for %v", hosts)

	for _, dir := range []string{filepath.Dir(certFile), filepath.Dir(keyFile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create certificate directory: %w", err)
		}
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Vanilla & Somethin site server"},
			CommonName:   hosts[0],
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(certificateLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	privBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}

	if err := writePEM(certFile, 0644, "CERTIFICATE", derBytes); err != nil {
		return err
	}
	if err := writePEM(keyFile, 0600, "EC PRIVATE KEY", privBytes); err != nil {
		return err
	}

	glog.Infof("Generated self-signed certificate at %s", certFile)
	glog.Infof("Generated private key at %s", keyFile)
	return nil
}

func writePEM(path string, perm os.FileMode, blockType string, der []byte) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}
