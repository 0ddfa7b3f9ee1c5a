package download

import (
	"errors"
	"net/url"
	"path"
)

var (
	// ErrNoFileName is returned when a URL path has no final segment.
	ErrNoFileName = errors.New("url has no file name")

	// ErrSink wraps failures creating or writing the destination.
	ErrSink = errors.New("sink error")
)

// Task describes one recording to download.
type Task struct {
	URL       string
	Directory string
}

// Outcome is the result of one download. Err is nil on success, in which
// case FilePath is where the recording was written and Size is the
// advertised Content-Length (0 when absent or unparsable).
type Outcome struct {
	URL      string
	FilePath string
	Size     int64
	Err      error
}

// Failed reports whether the download failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// FileName returns the last segment of the URL path, ignoring query and
// fragment. Percent-escapes are kept as written, so an encoded slash or dot
// segment never becomes a path separator.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.EscapedPath())
	if name == "." || name == "/" || name == "" || name == ".." {
		return "", ErrNoFileName
	}
	return name, nil
}
