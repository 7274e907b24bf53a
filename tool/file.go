package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/moyoez/productshot/types"
)

// GetFileInfoFromPath reads file information from local filesystem.
func GetFileInfoFromPath(filePath string, calculateSHA bool) (types.FileInfo, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return types.FileInfo{}, fmt.Errorf("failed to stat file: %v", err)
	}
	if fileInfo.IsDir() {
		return types.FileInfo{}, fmt.Errorf("path is a directory, not a file")
	}

	info := types.FileInfo{
		Path:        filePath,
		FileName:    filepath.Base(filePath),
		Size:        fileInfo.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(filePath)),
	}

	if info.ContentType == "" || calculateSHA {
		file, err := os.Open(filePath)
		if err != nil {
			return info, fmt.Errorf("failed to open file: %v", err)
		}
		defer file.Close()

		if info.ContentType == "" {
			contentType, err := sniffContentType(file)
			if err != nil {
				return info, fmt.Errorf("failed to read file: %v", err)
			}
			info.ContentType = contentType
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return info, fmt.Errorf("failed to rewind file: %v", err)
			}
		}
		if calculateSHA {
			hasher := sha256.New()
			if _, err := io.Copy(hasher, file); err != nil {
				return info, fmt.Errorf("failed to calculate SHA256: %v", err)
			}
			info.SHA256 = hex.EncodeToString(hasher.Sum(nil))
		}
	}

	return info, nil
}

// sniffContentType detects the MIME type from the first 512 bytes. Short files are fine.
func sniffContentType(r io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}
