// gmifetch is a Gemini client meant to be run as a (local) CGI script.
// The URL comes from the first argument or QUERY_STRING; the response is
// translated into CGI output on stdout. Server certificates are pinned in
// a known_hosts file on first use, the user decides through POSTed forms.
//
// Environment:
//   - GMIFETCH_KNOWN_HOSTS overrides the known_hosts path. The default is
//     $XDG_CONFIG_HOME/gmifetch/known_hosts, with XDG_CONFIG_HOME falling
//     back to $HOME/.config.
//   - REQUEST_METHOD=POST makes gmifetch read a form submission on stdin.
//   - ALL_PROXY must be empty, proxies are not supported.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.RFC3339,
}

// Logger writes to stderr; stdout belongs to the CGI response.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	Level(zerolog.WarnLevel)

const proxyMessage = "gmifetch does not support proxies yet. Please disable " +
	"your proxy for gemini URLs if you wish to proceed anyway."

func main() {
	flags := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flags.String("known-hosts", "", "`path` of the known_hosts file")
	flags.String("log-level", "", "stderr log level (debug, info, warn, error)")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [url] (or set QUERY_STRING)\n", appName)
		flags.PrintDefaults()
	}

	stdout := bufio.NewWriter(os.Stdout)
	out := &cgiWriter{w: stdout}

	err := flags.Parse(os.Args[1:])
	if err == nil {
		err = run(afero.NewOsFs(), flags, os.Stdin, out)
	}
	if err != nil {
		Logger.Error().Err(err).Msg("request failed")
		if !out.committed {
			fmt.Fprintf(out, "Content-Type: text/plain\r\n\r\n%v\n", err)
		}
	}
	stdout.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func run(fs afero.Fs, flags *pflag.FlagSet, stdin io.Reader, w io.Writer) error {
	v, err := NewConfig(fs, flags)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return xerrors.Errorf("log level: %v: %w", err, ErrConfig)
	}
	Logger = Logger.Level(level)

	if v.GetString("all_proxy") != "" {
		return xerrors.Errorf("%s: %w", proxyMessage, ErrConfig)
	}

	raw := v.GetString("query_string")
	switch flags.NArg() {
	case 0:
	case 1:
		raw = flags.Arg(0)
	default:
		return xerrors.Errorf("usage: %s [url] (or set QUERY_STRING): %w", appName, ErrConfig)
	}
	if raw == "" {
		return xerrors.Errorf("usage: %s [url] (or set QUERY_STRING): %w", appName, ErrConfig)
	}

	path, err := KnownHostsPath(v)
	if err != nil {
		return err
	}
	knownHosts, err := OpenKnownHosts(fs, path)
	if err != nil {
		return err
	}

	t, err := ParseTarget(raw)
	if err != nil {
		return err
	}

	client := &Client{
		KnownHosts: knownHosts,
		Connector:  &Connector{},
	}
	return client.Do(w, Request{
		Target: t,
		Method: v.GetString("request_method"),
		Body:   stdin,
	})
}

// cgiWriter remembers whether any output went out, after which a plain
// text error can no longer be reported.
type cgiWriter struct {
	w         io.Writer
	committed bool
}

func (c *cgiWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		c.committed = true
	}
	return c.w.Write(p)
}
