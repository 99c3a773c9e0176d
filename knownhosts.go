package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// DigestSHA256 is the only digest written to or accepted from known_hosts.
const DigestSHA256 = "sha256"

// fingerprintFormat is the colon separated upper case hex written by
// Fingerprint.
var fingerprintFormat = regexp.MustCompile(`^[0-9A-F]{2}(:[0-9A-F]{2})*$`)

// KnownHost is one line of the known_hosts file.
type KnownHost struct {
	Host        string
	Algorithm   string
	Fingerprint string
	NotAfter    *int64 // epoch seconds, nil when the line has no date
}

// ParseKnownHost parses "<host> <algorithm> <fingerprint>[ <notAfter>]".
func ParseKnownHost(line string) (*KnownHost, error) {
	line = strings.TrimSuffix(line, "\n")

	host, rest, ok := strings.Cut(line, " ")
	if !ok || host == "" {
		return nil, xerrors.Errorf("known_hosts entry %q: missing host separator: %w", line, ErrConfig)
	}
	algo, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return nil, xerrors.Errorf("known_hosts entry %q: missing fingerprint: %w", line, ErrConfig)
	}
	if algo != DigestSHA256 && algo != "SHA256" {
		return nil, xerrors.Errorf("known_hosts entry %q: unsupported digest %q: %w", line, algo, ErrConfig)
	}

	kh := &KnownHost{Host: host, Algorithm: DigestSHA256}

	fp, date, hasDate := strings.Cut(rest, " ")
	if !fingerprintFormat.MatchString(fp) {
		return nil, xerrors.Errorf("known_hosts entry %q: bad fingerprint %q: %w", line, fp, ErrConfig)
	}
	kh.Fingerprint = fp

	if hasDate {
		n, err := strconv.ParseInt(date, 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("known_hosts entry %q: bad date: %w", line, ErrConfig)
		}
		kh.NotAfter = &n
	}
	return kh, nil
}

// String renders the canonical line, without the newline.
func (kh KnownHost) String() string {
	if kh.NotAfter == nil {
		return fmt.Sprintf("%s %s %s", kh.Host, DigestSHA256, kh.Fingerprint)
	}
	return fmt.Sprintf("%s %s %s %d", kh.Host, DigestSHA256, kh.Fingerprint, *kh.NotAfter)
}

// KnownHosts is the known_hosts file. Lines are only ever appended; a host
// is re-pinned by appending the new line and then rewriting the file
// without the older lines for that host.
type KnownHosts struct {
	fs   afero.Fs
	path string
}

// OpenKnownHosts makes sure the file and its parent directories exist.
func OpenKnownHosts(fs afero.Fs, path string) (*KnownHosts, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, xerrors.Errorf("creating %s: %v: %w", filepath.Dir(path), err, ErrConfig)
	}
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %v: %w", path, err, ErrConfig)
	}
	f.Close()

	return &KnownHosts{fs: fs, path: path}, nil
}

// Path of the backing file.
func (k *KnownHosts) Path() string {
	return k.path
}

// Lookup returns the first record for host, or ErrUnknownHost. Lines
// before the match only need a host separator; the matching line has to
// parse completely.
func (k *KnownHosts) Lookup(host string) (*KnownHost, error) {
	f, err := k.fs.Open(k.path)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %v: %w", k.path, err, ErrConfig)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			h, _, ok := strings.Cut(line, " ")
			if !ok {
				return nil, xerrors.Errorf("%s: incorrectly formatted line %q: %w", k.path, line, ErrConfig)
			}
			if h == host {
				return ParseKnownHost(line)
			}
		}
		if err == io.EOF {
			return nil, ErrUnknownHost
		}
		if err != nil {
			return nil, xerrors.Errorf("reading %s: %v: %w", k.path, err, ErrConfig)
		}
	}
}

// Size is the current length of the file, the offset the next Append
// starts at.
func (k *KnownHosts) Size() (int64, error) {
	fi, err := k.fs.Stat(k.path)
	if err != nil {
		return 0, xerrors.Errorf("stat %s: %v: %w", k.path, err, ErrIO)
	}
	return fi.Size(), nil
}

// Append writes kh at the end of the file. The file is closed, and so
// flushed, before returning.
func (k *KnownHosts) Append(kh KnownHost) error {
	if kh.Host == "" || strings.ContainsAny(kh.Host, " \t\r\n") || !fingerprintFormat.MatchString(kh.Fingerprint) {
		return xerrors.Errorf("refusing to store malformed entry %q: %w", kh.String(), ErrProtocol)
	}

	line := kh.String() + "\n"
	// a hand edited file may lack the final newline
	if !k.endsWithNewline() {
		line = "\n" + line
	}

	f, err := k.fs.OpenFile(k.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return xerrors.Errorf("opening %s: %v: %w", k.path, err, ErrIO)
	}
	if _, err := io.WriteString(f, line); err != nil {
		f.Close()
		return xerrors.Errorf("appending to %s: %v: %w", k.path, err, ErrIO)
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("closing %s: %v: %w", k.path, err, ErrIO)
	}
	return nil
}

func (k *KnownHosts) endsWithNewline() bool {
	f, err := k.fs.Open(k.path)
	if err != nil {
		return true
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return true
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil {
		return true
	}
	return last[0] == '\n'
}

// ReplaceHost drops every line for host that starts before upto. The
// remaining lines go to a fresh temporary file next to the store, which
// is then renamed over it. The store is not touched until the rename; a
// failed rename leaves the temporary file in place for manual recovery.
func (k *KnownHosts) ReplaceHost(host string, upto int64) error {
	in, err := k.fs.Open(k.path)
	if err != nil {
		return xerrors.Errorf("opening %s: %v: %w", k.path, err, ErrIO)
	}
	defer in.Close()

	tmp, err := afero.TempFile(k.fs, filepath.Dir(k.path), filepath.Base(k.path)+"~")
	if err != nil {
		return xerrors.Errorf("creating temporary file: %v: %w", err, ErrIO)
	}
	tmpName := tmp.Name()

	abort := func(err error) error {
		tmp.Close()
		k.fs.Remove(tmpName)
		return err
	}

	r := bufio.NewReader(in)
	w := bufio.NewWriter(tmp)
	var offset int64
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			start := offset
			offset += int64(len(line))

			keep := true
			if start < upto {
				if !strings.HasSuffix(line, "\n") {
					return abort(xerrors.Errorf("%s: truncated line %q: %w", k.path, line, ErrConfig))
				}
				h, _, ok := strings.Cut(line, " ")
				if !ok {
					return abort(xerrors.Errorf("%s: incorrectly formatted line %q: %w", k.path, line, ErrConfig))
				}
				keep = h != host
			}
			if keep {
				if _, werr := w.WriteString(line); werr != nil {
					return abort(xerrors.Errorf("writing %s: %v: %w", tmpName, werr, ErrIO))
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return abort(xerrors.Errorf("reading %s: %v: %w", k.path, err, ErrIO))
		}
	}

	if err := w.Flush(); err != nil {
		return abort(xerrors.Errorf("writing %s: %v: %w", tmpName, err, ErrIO))
	}
	if err := tmp.Sync(); err != nil {
		return abort(xerrors.Errorf("syncing %s: %v: %w", tmpName, err, ErrIO))
	}
	if err := tmp.Close(); err != nil {
		k.fs.Remove(tmpName)
		return xerrors.Errorf("closing %s: %v: %w", tmpName, err, ErrIO)
	}

	if err := k.fs.Rename(tmpName, k.path); err != nil {
		return xerrors.Errorf("renaming %s over %s (left in place): %v: %w", tmpName, k.path, err, ErrIO)
	}

	Logger.Debug().Str("host", host).Str("path", k.path).Msg("rewrote known_hosts")
	return nil
}

// Trust pins kh as the only record for its host.
func (k *KnownHosts) Trust(kh KnownHost) error {
	upto, err := k.Size()
	if err != nil {
		return err
	}
	if err := k.Append(kh); err != nil {
		return err
	}
	return k.ReplaceHost(kh.Host, upto)
}
