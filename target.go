package main

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/xerrors"
)

const (
	DefaultPort = 1965

	// MaxRequestLength is the longest URL a Gemini server has to accept,
	// not counting the CRLF.
	MaxRequestLength = 1024
)

// Target is one gemini:// URL split into the parts the connector and the
// known_hosts file care about.
type Target struct {
	Host  string // ASCII form, no brackets
	Port  uint16
	Path  string // escaped, always starts with "/"
	Query string // escaped, without the "?"
}

// ParseTarget validates a gemini URL. IDN hosts are converted to their
// ASCII form so SNI, the request line and known_hosts all agree.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, xerrors.Errorf("invalid URL %q: %v: %w", raw, err, ErrProtocol)
	}
	if u.Scheme != "gemini" {
		return Target{}, xerrors.Errorf("invalid URL %q: scheme must be gemini: %w", raw, ErrProtocol)
	}
	if u.User != nil {
		return Target{}, xerrors.Errorf("invalid URL %q: userinfo not allowed: %w", raw, ErrProtocol)
	}

	host, err := asciiHost(u.Hostname())
	if err != nil {
		return Target{}, xerrors.Errorf("invalid URL %q: %w", raw, err)
	}

	port := uint16(DefaultPort)
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return Target{}, xerrors.Errorf("invalid URL %q: bad port %q: %w", raw, p, ErrProtocol)
		}
		port = uint16(n)
	}

	path := u.EscapedPath()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	t := Target{Host: host, Port: port, Path: path, Query: u.RawQuery}
	if len(t.URL()) > MaxRequestLength {
		return Target{}, xerrors.Errorf("URL longer than %d bytes: %w", MaxRequestLength, ErrProtocol)
	}
	return t, nil
}

func asciiHost(host string) (string, error) {
	if host == "" {
		return "", xerrors.Errorf("empty host: %w", ErrProtocol)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", xerrors.Errorf("bad host %q: %v: %w", host, err, ErrProtocol)
	}
	return strings.ToLower(ascii), nil
}

// Addr is the dial address, with IPv6 literals bracketed.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// URL renders the request URL. The default port is left out, some servers
// reject URLs that spell it out.
func (t Target) URL() string {
	var b strings.Builder
	b.WriteString("gemini://")
	if t.Port == DefaultPort {
		if strings.Contains(t.Host, ":") {
			b.WriteString("[" + t.Host + "]")
		} else {
			b.WriteString(t.Host)
		}
	} else {
		b.WriteString(t.Addr())
	}
	b.WriteString(t.Path)
	if t.Query != "" {
		b.WriteString("?" + t.Query)
	}
	return b.String()
}

// RequestLine is the exact bytes sent to the server.
func (t Target) RequestLine() string {
	return t.URL() + "\r\n"
}

// WithInput replaces the query with user input, escaped the way Gemini
// expects (spaces as %20).
func (t Target) WithInput(input string) (Target, error) {
	t.Query = strings.ReplaceAll(url.QueryEscape(input), "+", "%20")
	if len(t.URL()) > MaxRequestLength {
		return Target{}, xerrors.Errorf("query too long: %w", ErrProtocol)
	}
	return t, nil
}
