package main

import (
	"bytes"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/xerrors"
)

// MaxPostLength bounds the form body read from stdin.
const MaxPostLength = 4096

var (
	unknownCertTemplate = template.Must(template.New("unknown").Parse(`<!DOCTYPE html>
<title>Unknown certificate</title>
<h1>Unknown certificate</h1>
<p>
The hostname of the server you are visiting could not be found
in your list of known hosts ({{.Path}}).
<p>
The server has sent us a certificate with the following
fingerprint:
<pre>{{.Fingerprint}}</pre>
<p>Trust it?
<form method=POST>
<input type=submit name=trust_cert value=always>
<input type=submit name=trust_cert value=once>
<input type=hidden name=entry value="{{.Entry}}">
</form>
`))

	invalidCertTemplate = template.Must(template.New("invalid").Parse(`<!DOCTYPE html>
<title>Invalid certificate</title>
<h1>Invalid certificate</h1>
<p>
The certificate received from the server does not match the
stored certificate (expected {{.Stored}}, but got {{.Fingerprint}}).
Somebody may be tampering with your connection.
<p>
If you are sure that this is not a man-in-the-middle attack,
please remove this host from {{.Path}}.
`))

	updatedCertTemplate = template.Must(template.New("updated").Parse(`<!DOCTYPE html>
<title>Certificate date changed</title>
<h1>Certificate date changed</h1>
<p>
The received certificate's date did not match the date in your
list of known hosts ({{.Path}}).
<p>
The new expiration date is: {{.Date}} ({{.Relative}}).
<p>
Update it?
<form method=POST>
<input type=submit name=trust_cert value=always>
<input type=submit name=trust_cert value=once>
<input type=hidden name=entry value="{{.Entry}}">
</form>
`))
)

type certPage struct {
	Path        string
	Fingerprint string
	Stored      string
	Entry       string
	Date        string
	Relative    string
}

// WriteVerdict renders the page for a certificate that cannot be used
// as is. Only unknown and renewed certificates get a form; a changed key
// has to be dealt with by editing known_hosts by hand.
func WriteVerdict(w io.Writer, v Verdict, s *Session, path string, stored *KnownHost) error {
	notAfter := s.NotAfter
	entry := KnownHost{
		Host:        s.Target.Host,
		Algorithm:   DigestSHA256,
		Fingerprint: s.Fingerprint,
		NotAfter:    &notAfter,
	}
	page := certPage{
		Path:        path,
		Fingerprint: s.Fingerprint,
		Entry:       entry.String(),
	}

	switch v {
	case NoRecord:
		return writeHTML(w, unknownCertTemplate, page)
	case FingerprintMismatch:
		if stored != nil {
			page.Stored = stored.Fingerprint
		}
		return writeHTML(w, invalidCertTemplate, page)
	case DateChanged:
		expiry := time.Unix(notAfter, 0)
		page.Date = expiry.UTC().Format(time.RFC1123)
		page.Relative = humanize.Time(expiry)
		return writeHTML(w, updatedCertTemplate, page)
	}
	return xerrors.Errorf("no page for verdict %s", v)
}

// writeHTML renders the whole page before writing the header, so a
// template error never leaves a half written response.
func writeHTML(w io.Writer, tmpl *template.Template, data interface{}) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return xerrors.Errorf("rendering %s: %v", tmpl.Name(), err)
	}
	if _, err := io.WriteString(w, "Content-Type: text/html\r\n\r\n"); err != nil {
		return err
	}
	_, err := body.WriteTo(w)
	return err
}

// Submission is what a POST back to gmifetch asks for. The forms rendered
// above produce exactly one of the two variants.
type Submission interface {
	submission()
}

// InputSubmission answers a status 1x prompt; the text becomes the query
// of the retried request.
type InputSubmission struct {
	Input string
}

// TrustSubmission answers a certificate prompt. Always pins Entry in
// known_hosts; otherwise the certificate is accepted for this request
// only. Entry may be nil for a bare trust_cert=once.
type TrustSubmission struct {
	Always bool
	Entry  *KnownHost
}

func (InputSubmission) submission() {}
func (TrustSubmission) submission() {}

// ReadSubmission reads and decodes a form POST.
func ReadSubmission(r io.Reader) (Submission, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxPostLength+1))
	if err != nil {
		return nil, xerrors.Errorf("reading POST body: %v: %w", err, ErrProtocol)
	}
	if len(body) > MaxPostLength {
		return nil, xerrors.Errorf("POST body longer than %d bytes: %w", MaxPostLength, ErrProtocol)
	}
	return ParseSubmission(string(body))
}

// ParseSubmission decodes an application/x-www-form-urlencoded body into
// one of the two submissions.
func ParseSubmission(body string) (Submission, error) {
	form, err := parseForm(strings.TrimRight(body, "\r\n"))
	if err != nil {
		return nil, err
	}

	input, hasInput := form["input"]
	trust, hasTrust := form["trust_cert"]

	switch {
	case hasInput && hasTrust:
		return nil, xerrors.Errorf("invalid POST request: both input and trust_cert: %w", ErrProtocol)
	case hasInput:
		return InputSubmission{Input: input}, nil
	case !hasTrust:
		return nil, xerrors.Errorf("invalid POST request: trust_cert missing: %w", ErrProtocol)
	}

	sub := TrustSubmission{}
	switch trust {
	case "always":
		sub.Always = true
	case "once":
	default:
		return nil, xerrors.Errorf("invalid POST request: trust_cert=%q: %w", trust, ErrProtocol)
	}

	raw, hasEntry := form["entry"]
	if !hasEntry {
		if sub.Always {
			return nil, xerrors.Errorf("invalid POST request: missing entry: %w", ErrProtocol)
		}
		return sub, nil
	}
	entry, err := ParseKnownHost(raw)
	if err != nil {
		return nil, xerrors.Errorf("invalid POST request: %v: %w", err, ErrProtocol)
	}
	sub.Entry = entry
	return sub, nil
}

// parseForm splits the body on '&' and '='. Each key and value is
// percent-decoded exactly once, with '+' meaning space. The first
// occurrence of a key wins.
func parseForm(body string) (map[string]string, error) {
	form := make(map[string]string)
	if body == "" {
		return form, nil
	}
	for _, pair := range strings.Split(body, "&") {
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, xerrors.Errorf("invalid percent encoding in %q: %w", k, ErrProtocol)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, xerrors.Errorf("invalid percent encoding in %q: %w", v, ErrProtocol)
		}
		if _, ok := form[key]; !ok {
			form[key] = value
		}
	}
	return form, nil
}
