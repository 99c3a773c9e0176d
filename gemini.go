package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strings"

	"golang.org/x/xerrors"
)

// ReadResponse parses the status line. The line, CRLF included, has to fit
// in MaxHeaderLength bytes; anything after it is left in Body.
func ReadResponse(r io.Reader) (*Response, error) {
	buf := bufio.NewReaderSize(r, MaxHeaderLength)

	var status [3]byte
	if _, err := io.ReadFull(buf, status[:]); err != nil {
		return nil, readError("invalid status code", err)
	}
	if !isDigit(status[0]) || !isDigit(status[1]) || status[2] != ' ' {
		return nil, xerrors.Errorf("invalid status code %q: %w", status[:], ErrProtocol)
	}

	var meta bytes.Buffer
	for {
		if len(status)+meta.Len() >= MaxHeaderLength {
			return nil, xerrors.Errorf("status line longer than %d bytes: %w", MaxHeaderLength, ErrProtocol)
		}
		b, err := buf.ReadByte()
		if err != nil {
			return nil, readError("invalid status line", err)
		}
		meta.WriteByte(b)
		if bytes.HasSuffix(meta.Bytes(), []byte("\r\n")) {
			break
		}
	}

	res := &Response{
		Status: int(status[0]-'0')*10 + int(status[1]-'0'),
		Meta:   strings.TrimSuffix(meta.String(), "\r\n"),
		Body:   buf,
	}
	if k := res.Kind(); k < KindInput || k > KindCertificateFailure {
		return nil, xerrors.Errorf("undefined status %02d: %w", res.Status, ErrProtocol)
	}
	return res, nil
}

func readError(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return xerrors.Errorf("%s: response ended early: %w", what, ErrProtocol)
	}
	return xerrors.Errorf("%s: %v: %w", what, err, ErrConnection)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

var (
	inputTemplate = template.Must(template.New("input").Parse(`<!DOCTYPE html>
<title>{{.Title}}</title>
<base href="{{.Base}}">
<h1>{{.Title}}</h1>
<p>
{{.Prompt}}
<p>
<form method=POST><input type="{{.Type}}" name="input"></form>
`))

	failureTemplate = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<title>{{.Kind}}</title>
<h1>{{.Title}}</h1>
<p>
{{.Detail}}
`))
)

// WriteResponse turns a Gemini response into CGI output. Everything that
// goes into the CGI header is checked before the first byte is written.
func WriteResponse(w io.Writer, t Target, res *Response) error {
	switch res.Kind() {
	case KindInput:
		typ := "search"
		if res.Sensitive() {
			typ = "password"
		}
		return writeHTML(w, inputTemplate, struct {
			Title  string
			Base   template.URL
			Prompt string
			Type   string
		}{res.Title(), template.URL(t.URL()), res.Meta, typ})

	case KindSuccess:
		mime := res.MIME()
		if err := headerSafe(mime); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "Content-Type: %s\r\n\r\n", mime); err != nil {
			return err
		}
		if _, err := io.Copy(w, res.Body); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return xerrors.Errorf("reading body: %v: %w", err, ErrConnection)
		}
		return nil

	case KindRedirect:
		if err := headerSafe(res.Meta); err != nil {
			return err
		}
		code := 307
		if res.Permanent() {
			code = 301
		}
		_, err := fmt.Fprintf(w, "Status: %d\r\nLocation: %s\r\n\r\n", code, res.Meta)
		return err

	case KindTemporaryFailure, KindPermanentFailure, KindCertificateFailure:
		return writeHTML(w, failureTemplate, struct {
			Kind   string
			Title  string
			Detail string
		}{res.Kind().String(), res.Title(), res.Meta})
	}
	return xerrors.Errorf("undefined status %02d: %w", res.Status, ErrProtocol)
}

// headerSafe rejects META values that would break out of a CGI header line.
func headerSafe(v string) error {
	if strings.ContainsAny(v, "\r\n") {
		return xerrors.Errorf("control characters in META %q: %w", v, ErrProtocol)
	}
	return nil
}
