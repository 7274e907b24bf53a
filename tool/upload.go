package tool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NextAvailableName returns name if it is free, otherwise name_1.ext, name_2.ext, ...
// exists reports whether a candidate name is already taken.
func NextAvailableName(name string, exists func(string) (bool, error)) (string, error) {
	dir, file := path.Split(name)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	if base == "" {
		base = file
		ext = ""
	}
	try := name
	for n := 1; ; n++ {
		taken, err := exists(try)
		if err != nil {
			return "", err
		}
		if !taken {
			return try, nil
		}
		try = dir + fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

// NextAvailablePath returns the first path under dir that does not exist, using fileName
// and if it exists, trying base_1.ext, base_2.ext, ...
func NextAvailablePath(dir, fileName string) string {
	name, _ := NextAvailableName(filepath.ToSlash(fileName), func(candidate string) (bool, error) {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(candidate)))
		return !os.IsNotExist(err), nil
	})
	return filepath.Join(dir, filepath.FromSlash(name))
}

// SafeFileName strips directories and whitespace from a client supplied file name.
func SafeFileName(name, fallback string) string {
	name = strings.TrimSpace(filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/"))))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}

// CopyWithContext copies from src to dst while respecting context cancellation.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 256*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if writeErr == nil {
					writeErr = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
