package main

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"io"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// cipherSuites is the TLS 1.2 allow-list: forward secret AEAD suites only.
// No anonymous, export, PSK/SRP, MD5, RC4 or static RSA key exchange.
// TLS 1.3 suites are not configurable and are all acceptable.
var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// Connector opens TLS sessions to Gemini servers. The zero value dials
// with tls.Dial and the wall clock.
type Connector struct {
	Dial func(network, addr string, config *tls.Config) (*tls.Conn, error)
	Now  func() time.Time
}

// Session is one open connection and what was learned about the peer
// certificate during the handshake.
type Session struct {
	C           *tls.Conn
	Target      Target
	Certificate *x509.Certificate
	Fingerprint string // SHA-256 of the SPKI, colon separated upper case hex
	NotAfter    int64  // epoch seconds
}

func (c *Connector) tlsConfig(t Target) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: cipherSuites,
		ServerName:   t.Host,
		// Chains are not checked against any CA; the peer is identified by
		// its known_hosts pin instead.
		InsecureSkipVerify: true,
	}
}

// Connect dials t and inspects the peer certificate. A certificate that
// is not valid right now is refused before known_hosts is consulted.
func (c *Connector) Connect(t Target) (*Session, error) {
	dial := c.Dial
	if dial == nil {
		dial = tls.Dial
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	conn, err := dial("tcp", t.Addr(), c.tlsConfig(t))
	if err != nil {
		return nil, xerrors.Errorf("connecting to %s: %v: %w", t.Addr(), err, ErrConnection)
	}
	if err := conn.Handshake(); err != nil {
		conn.Close()
		return nil, xerrors.Errorf("handshake with %s: %v: %w", t.Addr(), err, ErrConnection)
	}

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		conn.Close()
		return nil, xerrors.Errorf("%s sent no certificate: %w", t.Addr(), ErrCertificate)
	}
	cert := peers[0]

	ts := now()
	if !ts.After(cert.NotBefore) || !ts.Before(cert.NotAfter) {
		conn.Close()
		return nil, xerrors.Errorf("%s: valid from %s to %s: %w", t.Host,
			cert.NotBefore.UTC().Format(time.RFC3339), cert.NotAfter.UTC().Format(time.RFC3339), ErrCertificateTime)
	}

	s := &Session{
		C:           conn,
		Target:      t,
		Certificate: cert,
		Fingerprint: Fingerprint(cert),
		NotAfter:    cert.NotAfter.Unix(),
	}
	Logger.Debug().Str("host", t.Host).Str("fingerprint", s.Fingerprint).
		Int64("not_after", s.NotAfter).Msg("connected")
	return s, nil
}

// Fingerprint hashes the DER SubjectPublicKeyInfo, not the certificate, so
// a renewal that keeps the key keeps the fingerprint.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hexColon(sum[:])
}

const hexTable = "0123456789ABCDEF"

func hexColon(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(hexTable[c>>4])
		sb.WriteByte(hexTable[c&0xF])
	}
	return sb.String()
}

// Send writes the request line for the session's target.
func (s *Session) Send() error {
	if _, err := io.WriteString(s.C, s.Target.RequestLine()); err != nil {
		return xerrors.Errorf("sending request to %s: %v: %w", s.Target.Host, err, ErrConnection)
	}
	return nil
}

func (s *Session) Close() error {
	return s.C.Close()
}
