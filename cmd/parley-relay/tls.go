package main

import (
	"crypto/tls"
	"fmt"
	"os"
)

// tlsCertificate loads PARLEY_TLS_CERT / PARLEY_TLS_KEY. Without them the zero
// certificate is returned and the HTTP/3 server generates a self-signed one.
func tlsCertificate() (tls.Certificate, error) {
	certFile, keyFile := os.Getenv("PARLEY_TLS_CERT"), os.Getenv("PARLEY_TLS_KEY")
	if certFile == "" || keyFile == "" {
		return tls.Certificate{}, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: %w", err)
	}
	return cert, nil
}
