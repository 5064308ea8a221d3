// Package quic carries the relay API over HTTP/3.
package quic

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	q "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/TheusHen/parley/parley/transport/rest"
)

const (
	idleTimeout     = 60 * time.Second
	keepAlivePeriod = 20 * time.Second
)

func quicConfig() *q.Config {
	return &q.Config{
		MaxIdleTimeout:  idleTimeout,
		KeepAlivePeriod: keepAlivePeriod,
	}
}

// Server serves an http.Handler, usually rest.NewHandler, over HTTP/3.
type Server struct {
	inner *http3.Server
}

// NewServer prepares a server for addr. A zero cert generates a self-signed one.
func NewServer(addr string, handler http.Handler, cert tls.Certificate) (*Server, error) {
	if len(cert.Certificate) == 0 {
		var err error
		if cert, err = SelfSignedCertificate(); err != nil {
			return nil, err
		}
	}
	return &Server{inner: &http3.Server{
		Addr:       addr,
		Handler:    handler,
		TLSConfig:  ServerTLSConfig(cert),
		QUICConfig: quicConfig(),
	}}, nil
}

// ListenAndServe listens on the configured UDP address.
func (s *Server) ListenAndServe() error { return s.inner.ListenAndServe() }

// Serve serves on an existing packet conn.
func (s *Server) Serve(conn net.PacketConn) error { return s.inner.Serve(conn) }

func (s *Server) Close() error { return s.inner.Close() }

// Client is a rest.Client whose requests travel over HTTP/3.
type Client struct {
	*rest.Client
	rt *http3.Transport
}

// NewClient returns a client for the relay at base ("https://host:port").
// A nil tlsConf verifies the relay against the system roots.
func NewClient(base string, tlsConf *tls.Config) *Client {
	if tlsConf == nil {
		tlsConf = ClientTLSConfig(false)
	}
	rt := &http3.Transport{
		TLSClientConfig: tlsConf,
		QUICConfig:      quicConfig(),
	}
	return &Client{
		Client: rest.New(base, &http.Client{Transport: rt}),
		rt:     rt,
	}
}

// Close releases the underlying QUIC connections.
func (c *Client) Close() error { return c.rt.Close() }
