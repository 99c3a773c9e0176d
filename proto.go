package main

import "io"

// Yoinked from jetforce and go'ified
const (
	STATUS_INPUT           = 10
	STATUS_SENSITIVE_INPUT = 11

	STATUS_SUCCESS = 20

	STATUS_REDIRECT_TEMPORARY = 30
	STATUS_REDIRECT_PERMANENT = 31

	STATUS_TEMPORARY_FAILURE  = 40
	STATUS_SERVER_UNAVAILABLE = 41
	STATUS_CGI_ERROR          = 42
	STATUS_PROXY_ERROR        = 43
	STATUS_SLOW_DOWN          = 44

	STATUS_PERMANENT_FAILURE     = 50
	STATUS_NOT_FOUND             = 51
	STATUS_GONE                  = 52
	STATUS_PROXY_REQUEST_REFUSED = 53
	STATUS_BAD_REQUEST           = 59

	STATUS_CLIENT_CERTIFICATE_REQUIRED = 60
	STATUS_CERTIFICATE_NOT_AUTHORISED  = 61
	STATUS_CERTIFICATE_NOT_VALID       = 62
)

const (
	// MaxHeaderLength bounds the status line, CRLF included.
	MaxHeaderLength = 1024

	DefaultMIME = "text/gemini; charset=utf-8"
)

// Kind is the first digit of a status code.
type Kind int

const (
	KindInput              Kind = STATUS_INPUT / 10
	KindSuccess            Kind = STATUS_SUCCESS / 10
	KindRedirect           Kind = STATUS_REDIRECT_TEMPORARY / 10
	KindTemporaryFailure   Kind = STATUS_TEMPORARY_FAILURE / 10
	KindPermanentFailure   Kind = STATUS_PERMANENT_FAILURE / 10
	KindCertificateFailure Kind = STATUS_CLIENT_CERTIFICATE_REQUIRED / 10
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "Input required"
	case KindSuccess:
		return "Success"
	case KindRedirect:
		return "Redirect"
	case KindTemporaryFailure:
		return "Temporary failure"
	case KindPermanentFailure:
		return "Permanent failure"
	case KindCertificateFailure:
		return "Certificate failure"
	}
	return "Undefined status"
}

// Response is a parsed Gemini response header. Body is the rest of the
// connection, including anything read past the header.
type Response struct {
	Status int
	Meta   string
	Body   io.Reader
}

func (r *Response) Kind() Kind {
	return Kind(r.Status / 10)
}

// MIME is the content type of a success response.
func (r *Response) MIME() string {
	if r.Meta == "" {
		return DefaultMIME
	}
	return r.Meta
}

// Sensitive reports whether an input prompt wants a masked field.
func (r *Response) Sensitive() bool {
	return r.Status == STATUS_SENSITIVE_INPUT
}

// Permanent reports whether a redirect is permanent. Only 30 is temporary.
func (r *Response) Permanent() bool {
	return r.Status != STATUS_REDIRECT_TEMPORARY
}

// Title is the human readable heading for the status: the specific name
// when the status has one, else the name of its kind.
func (r *Response) Title() string {
	switch r.Kind() {
	case KindInput:
		if r.Status == STATUS_SENSITIVE_INPUT {
			return "Sensitive input required"
		}
	case KindRedirect:
		switch r.Status {
		case STATUS_REDIRECT_TEMPORARY:
			return "Temporary redirect"
		case STATUS_REDIRECT_PERMANENT:
			return "Permanent redirect"
		}
	case KindTemporaryFailure:
		switch r.Status {
		case STATUS_SERVER_UNAVAILABLE:
			return "Server unavailable"
		case STATUS_CGI_ERROR:
			return "CGI error"
		case STATUS_PROXY_ERROR:
			return "Proxy error"
		case STATUS_SLOW_DOWN:
			return "Slow down!"
		}
	case KindPermanentFailure:
		switch r.Status {
		case STATUS_NOT_FOUND:
			return "Not found"
		case STATUS_GONE:
			return "Gone"
		case STATUS_PROXY_REQUEST_REFUSED:
			return "Proxy request refused"
		case STATUS_BAD_REQUEST:
			return "Bad request"
		}
	case KindCertificateFailure:
		switch r.Status {
		case STATUS_CERTIFICATE_NOT_AUTHORISED:
			return "Certificate not authorized"
		case STATUS_CERTIFICATE_NOT_VALID:
			return "Certificate not valid"
		}
	}
	return r.Kind().String()
}
