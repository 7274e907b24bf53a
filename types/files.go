package types

// FileInfo describes a local file attached to an upload section.
type FileInfo struct {
	Path        string `json:"path"`
	FileName    string `json:"fileName"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	SHA256      string `json:"sha256,omitempty"`
}

// IsImage reports whether the file would get a preview (image/* only).
func (f FileInfo) IsImage() bool {
	return len(f.ContentType) > 6 && f.ContentType[:6] == "image/"
}
