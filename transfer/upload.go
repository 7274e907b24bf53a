package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"slices"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

const uploadAction = "Upload"

// Upload sends one task as a multipart POST: file, image_type and every
// non-empty metadata entry. onProgress receives 0-100 as the body is written.
func (c *Client) Upload(ctx context.Context, task types.UploadTask, onProgress func(percent int)) (*types.UploadResponse, error) {
	if err := checkContext(ctx, uploadAction); err != nil {
		return nil, err
	}
	url := tool.BuildUploadURL(c.cfg, task.ProductID)
	if url == "" {
		return nil, &Error{Kind: ErrNotConfigured, Message: "Upload failed: upload URL not configured"}
	}

	file, err := os.Open(task.File.Path)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: fmt.Sprintf("Upload failed: cannot open %s: %v", task.File.FileName, err), Err: err}
	}
	defer func() {
		if err := file.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close %s: %v", task.File.Path, err)
		}
	}()
	stat, err := file.Stat()
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: fmt.Sprintf("Upload failed: cannot stat %s: %v", task.File.FileName, err), Err: err}
	}

	head, tail, contentType, err := multipartEnvelope(task)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload body: %w", err)
	}
	total := int64(len(head)) + stat.Size() + int64(len(tail))
	body := &progressReader{
		r:      io.MultiReader(bytes.NewReader(head), file, bytes.NewReader(tail)),
		total:  total,
		report: onProgress,
	}
	body.start()

	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodPost, url, body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	tool.DefaultLogger.Debugf("[Upload] Sending %s (%d bytes) to %s", task.File.FileName, stat.Size(), url)
	status, respBody, err := c.exchange(c.upload, req, uploadAction)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(uploadAction, status, respBody)
	}

	var response types.UploadResponse
	if err := sonic.Unmarshal(respBody, &response); err != nil {
		return nil, malformed(uploadAction, status, err)
	}
	if !response.Success {
		msg := response.Error
		if msg == "" {
			msg = "Upload failed"
		}
		return nil, &Error{Kind: ErrRejected, Status: status, Message: msg}
	}

	tool.DefaultLogger.Infof("[Upload] %s stored as image %d", task.File.FileName, response.ImageID)
	return &response, nil
}

// multipartEnvelope renders every part around the file content, so the body
// can be streamed from disk with a known length.
func multipartEnvelope(task types.UploadTask) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("image_type", string(task.Category)); err != nil {
		return nil, nil, "", err
	}
	keys := make([]string, 0, len(task.Metadata))
	for k, v := range task.Metadata {
		if v != "" && k != "image_type" && k != "file" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, task.Metadata[k]); err != nil {
			return nil, nil, "", err
		}
	}

	fileType := task.File.ContentType
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(task.File.FileName)))
	h.Set("Content-Type", fileType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", err
	}
	head = bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}
	tail = bytes.Clone(buf.Bytes())
	return head, tail, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader reports the percentage of the body consumed by the transport.
type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report func(int)
}

func (p *progressReader) start() {
	if p.report != nil && p.total > 0 {
		p.report(0)
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	if n > 0 && p.report != nil && p.total > 0 {
		p.report(int(p.sent * 100 / p.total))
	}
	return n, err
}
