// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

// Package tls provides TLS configuration for the gateway listener: either
// an operator-supplied certificate pair or an ephemeral self-signed
// certificate for development setups.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	"github.com/samber/oops"
)

// ServerConfig builds a *tls.Config for the gateway listener.
// With certFile and keyFile set, the pair is loaded from disk. With both
// empty, an ephemeral self-signed certificate is generated; it is valid for
// localhost only and is not persisted, so every restart gets a new one.
func ServerConfig(certFile, keyFile string) (*stdtls.Config, error) {
	var cert stdtls.Certificate
	var err error

	if certFile != "" || keyFile != "" {
		if certFile == "" || keyFile == "" {
			return nil, oops.Code("TLS_CONFIG_INVALID").
				Errorf("tls_cert_file and tls_key_file must be set together")
		}
		cert, err = stdtls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, oops.Code("TLS_LOAD_FAILED").
				With("cert_file", certFile).
				With("key_file", keyFile).
				Wrap(err)
		}
	} else {
		cert, err = generateSelfSigned()
		if err != nil {
			return nil, err
		}
	}

	return &stdtls.Config{
		Certificates: []stdtls.Certificate{cert},
		MinVersion:   stdtls.VersionTLS12,
	}, nil
}

// generateSelfSigned creates an ephemeral ECDSA P-256 server certificate.
func generateSelfSigned() (stdtls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return stdtls.Certificate{}, oops.Code("TLS_KEYGEN_FAILED").Wrap(err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return stdtls.Certificate{}, oops.Code("TLS_KEYGEN_FAILED").
			With("operation", "generate serial").
			Wrap(err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"WireGate"},
			CommonName:   "wiregate",
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return stdtls.Certificate{}, oops.Code("TLS_CERT_FAILED").
			With("operation", "create certificate").
			Wrap(err)
	}

	return stdtls.Certificate{
		Certificate: [][]byte{certBytes},
		PrivateKey:  key,
	}, nil
}
