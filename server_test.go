package main

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testServer is a tiny Gemini server listening on loopback. Every
// connection gets the canned response, and the request lines it saw are
// recorded. Connections closed before a full request line arrived are
// signalled on hangups.
type testServer struct {
	ln       net.Listener
	leaf     *x509.Certificate
	response string
	hangups  chan struct{}

	sync.Mutex
	requests []string
}

func newCertificate(t *testing.T, notBefore, notAfter time.Time) tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}

func validCertificate(t *testing.T) tls.Certificate {
	now := time.Now()
	return newCertificate(t, now.Add(-time.Hour), now.Add(24*time.Hour).Truncate(time.Second))
}

func startServer(t *testing.T, cert tls.Certificate, response string) *testServer {
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)

	s := &testServer{ln: ln, leaf: cert.Leaf, response: response, hangups: make(chan struct{}, 16)}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *testServer) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(c)
	}
}

func (s *testServer) handle(c net.Conn) {
	defer c.Close()

	buf := bufio.NewReader(c)
	data := make([]byte, 0, 1026) //1024 for the URL, 2 for the CRLF
	for len(data) < 1026 && !strings.HasSuffix(string(data), "\r\n") {
		b, err := buf.ReadByte()
		if err != nil {
			// the client hung up after looking at the certificate
			select {
			case s.hangups <- struct{}{}:
			default:
			}
			return
		}
		data = append(data, b)
	}

	s.Lock()
	s.requests = append(s.requests, string(data))
	s.Unlock()

	c.Write([]byte(s.response))
}

func (s *testServer) Requests() []string {
	s.Lock()
	defer s.Unlock()
	return append([]string(nil), s.requests...)
}

// WaitHangup blocks until a connection was closed without sending a
// request.
func (s *testServer) WaitHangup(t *testing.T) {
	select {
	case <-s.hangups:
	case <-time.After(5 * time.Second):
		t.Fatal("client never hung up")
	}
}

func (s *testServer) Port() uint16 {
	return uint16(s.ln.Addr().(*net.TCPAddr).Port)
}

func (s *testServer) Target(path string) Target {
	return Target{Host: "127.0.0.1", Port: s.Port(), Path: path}
}

func (s *testServer) URL(path string) string {
	return "gemini://127.0.0.1:" + strconv.Itoa(int(s.Port())) + path
}

// Record is the known_hosts line pinning the server's current certificate.
func (s *testServer) Record() KnownHost {
	notAfter := s.leaf.NotAfter.Unix()
	return KnownHost{
		Host:        "127.0.0.1",
		Algorithm:   DigestSHA256,
		Fingerprint: Fingerprint(s.leaf),
		NotAfter:    &notAfter,
	}
}
