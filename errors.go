package main

import "golang.org/x/xerrors"

// Error kinds. Every fatal error returned by gmifetch wraps exactly one of
// these, so callers classify with errors.Is.
var (
	// ErrConfig is a bad path, unusable environment or malformed known_hosts.
	ErrConfig = xerrors.New("configuration error")

	// ErrConnection is a network or TLS library failure.
	ErrConnection = xerrors.New("connection error")

	// ErrCertificate is a peer certificate that could not be used at all.
	ErrCertificate = xerrors.New("certificate error")

	// ErrCertificateTime is a peer certificate outside of its validity
	// window. It is rejected whatever the known_hosts file says.
	ErrCertificateTime = xerrors.Errorf("certificate outside of its validity window: %w", ErrCertificate)

	// ErrProtocol is a malformed Gemini response or a malformed POST body.
	ErrProtocol = xerrors.New("protocol error")

	// ErrIO is a filesystem failure while rewriting known_hosts.
	ErrIO = xerrors.New("i/o error")

	// ErrUnknownHost is returned by a lookup that found no record.
	ErrUnknownHost = xerrors.New("host not in known_hosts")
)
