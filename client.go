package main

import (
	"errors"
	"io"

	"golang.org/x/xerrors"
)

// Request is one CGI invocation as seen by the client.
type Request struct {
	Target Target
	Method string    // GET or POST
	Body   io.Reader // form body, read only for POST
}

// Client runs a single request/response cycle: decode a POST if there is
// one, connect, decide on trust, then either send the request and relay
// the response or render a certificate page.
type Client struct {
	KnownHosts *KnownHosts
	Connector  *Connector
}

func (c *Client) Do(w io.Writer, req Request) error {
	t := req.Target

	var once *TrustSubmission
	if req.Method == "POST" {
		sub, err := ReadSubmission(req.Body)
		if err != nil {
			return err
		}
		switch s := sub.(type) {
		case InputSubmission:
			t, err = t.WithInput(s.Input)
			if err != nil {
				return err
			}
		case TrustSubmission:
			if s.Entry != nil && s.Entry.Host != t.Host {
				return xerrors.Errorf("entry for %s submitted to %s: %w", s.Entry.Host, t.Host, ErrProtocol)
			}
			if s.Always {
				if err := c.KnownHosts.Trust(*s.Entry); err != nil {
					return err
				}
				Logger.Info().Str("host", t.Host).Str("fingerprint", s.Entry.Fingerprint).Msg("trusted certificate")
			} else {
				once = &s
			}
		}
	}

	sess, err := c.Connector.Connect(t)
	if err != nil {
		return err
	}
	defer sess.Close()

	stored, err := c.KnownHosts.Lookup(t.Host)
	if err != nil && !errors.Is(err, ErrUnknownHost) {
		return err
	}

	v := Evaluate(sess.Fingerprint, sess.NotAfter, stored)
	if v != Trusted && once.accepts(v, sess) {
		Logger.Debug().Str("host", t.Host).Stringer("verdict", v).Msg("trusted once")
		v = Trusted
	}
	Logger.Debug().Str("host", t.Host).Stringer("verdict", v).Msg("evaluated certificate")

	if v != Trusted {
		return WriteVerdict(w, v, sess, c.KnownHosts.Path(), stored)
	}

	if err := sess.Send(); err != nil {
		return err
	}
	res, err := ReadResponse(sess.C)
	if err != nil {
		return err
	}
	Logger.Debug().Str("url", t.URL()).Int("status", res.Status).Str("meta", res.Meta).Msg("response")
	return WriteResponse(w, t, res)
}

// accepts reports whether a trust_cert=once submission covers verdict v.
// A changed key is never accepted, and when the form carried an entry the
// certificate must be the one that was shown to the user.
func (s *TrustSubmission) accepts(v Verdict, sess *Session) bool {
	if s == nil || v == FingerprintMismatch {
		return false
	}
	return s.Entry == nil || s.Entry.Fingerprint == sess.Fingerprint
}
