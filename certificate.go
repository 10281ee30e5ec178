package apns

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// LoadCertificateFile reads a certificate and private key from disk and
// builds a tls.Certificate suitable for GatewayConfig/FeedbackConfig.
// keyFile may be empty if certFile is a combined cert+key PEM.
func LoadCertificateFile(certFile, keyFile string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	if keyFile == "" {
		return LoadCombinedPEM(certPEM)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// LoadCombinedPEM parses PEM data containing both the certificate
// chain and the private key, the form Apple's provider
// certificate export tools typically produce. It is more permissive
// than tls.X509KeyPair, which expects the cert and key in separate
// files: it walks every PEM block, collects certificates, and accepts
// the first non-certificate block as the key, trying PKCS#1 and then
// PKCS#8. Adapted from cfilipov-go-apns/pem.go.
func LoadCombinedPEM(pemBlock []byte) (tls.Certificate, error) {
	var cert tls.Certificate
	var keyBlock *pem.Block

	for {
		var block *pem.Block
		block, pemBlock = pem.Decode(pemBlock)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert.Certificate = append(cert.Certificate, block.Bytes)
			continue
		}
		if keyBlock == nil {
			keyBlock = block
		}
	}

	if len(cert.Certificate) == 0 {
		return tls.Certificate{}, errors.New("apns: no certificate PEM block found")
	}
	if keyBlock == nil {
		return tls.Certificate{}, errors.New("apns: no private key PEM block found")
	}

	key, err := parseRSAPrivateKey(keyBlock.Bytes)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert.PrivateKey = key

	if _, err := x509.ParseCertificate(cert.Certificate[0]); err != nil {
		return tls.Certificate{}, err
	}

	return cert, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	priv, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.New("apns: failed to parse private key: " + err.Error())
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("apns: found non-RSA private key in PKCS#8 wrapping")
	}
	return key, nil
}

// ClientTLSConfig builds the tls.Config a GatewayClient or
// FeedbackClient needs from a loaded provider certificate.
func ClientTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

// LoadPKCS12File loads a provider certificate exported as a .p12
// bundle, the form Apple's Keychain Access export produces.
func LoadPKCS12File(p12File, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(p12File)
	if err != nil {
		return tls.Certificate{}, err
	}
	key, certificate, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{certificate.Raw},
		PrivateKey:  key,
		Leaf:        certificate,
	}, nil
}
