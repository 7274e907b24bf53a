package transfer

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

const (
	validateAction = "Validation"
	submitAction   = "Submission"
	csrfAction     = "Token request"
)

// Validate posts the full form URL-encoded and returns the server verdict.
// An empty validation URL yields ErrNotConfigured.
func (c *Client) Validate(ctx context.Context, productID int64, values url.Values) (*types.ValidateResponse, error) {
	if err := checkContext(ctx, validateAction); err != nil {
		return nil, err
	}
	endpoint := tool.BuildValidateURL(c.cfg, productID)
	if endpoint == "" {
		return nil, &Error{Kind: ErrNotConfigured, Message: "Validation URL not configured"}
	}

	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode())))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := c.exchange(c.http, req, validateAction)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(validateAction, status, body)
	}
	var response types.ValidateResponse
	if err := sonic.Unmarshal(body, &response); err != nil {
		return nil, malformed(validateAction, status, err)
	}
	return &response, nil
}

// Submit performs the plain form submission: every value plus the files of
// sections that were not uploaded in the background, keyed by field name.
func (c *Client) Submit(ctx context.Context, productID int64, values url.Values, files map[string]types.FileInfo) (*types.SubmitResponse, error) {
	if err := checkContext(ctx, submitAction); err != nil {
		return nil, err
	}
	endpoint := tool.BuildSubmitURL(c.cfg, productID)
	if endpoint == "" {
		return nil, &Error{Kind: ErrNotConfigured, Message: "Submission URL not configured"}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, values, files))
	}()

	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr))
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	status, body, err := c.exchange(c.upload, req, submitAction)
	pr.Close()
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(submitAction, status, body)
	}
	var response types.SubmitResponse
	if err := sonic.Unmarshal(body, &response); err != nil {
		return nil, malformed(submitAction, status, err)
	}
	if !response.Success {
		msg := response.Error
		if msg == "" {
			msg = "Submission failed"
		}
		return &response, &Error{Kind: ErrRejected, Status: status, Message: msg}
	}
	tool.DefaultLogger.Infof("[Submit] Product %d submitted (complete: %v, stored %d files)", productID, response.SubmissionComplete, response.Stored)
	return &response, nil
}

func writeForm(mw *multipart.Writer, values url.Values, files map[string]types.FileInfo) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range values[k] {
			if err := mw.WriteField(k, v); err != nil {
				return err
			}
		}
	}

	fields := make([]string, 0, len(files))
	for k := range files {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	for _, field := range fields {
		if err := writeFilePart(mw, field, files[field]); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, field string, info types.FileInfo) error {
	f, err := os.Open(info.Path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", info.FileName, err)
	}
	defer f.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(info.FileName)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// FetchCSRFToken requests a fresh security token and installs it on the client.
func (c *Client) FetchCSRFToken(ctx context.Context) (string, error) {
	endpoint := tool.BuildCSRFURL(c.cfg)
	if endpoint == "" {
		return "", &Error{Kind: ErrNotConfigured, Message: "Token URL not configured"}
	}
	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil))
	if err != nil {
		return "", err
	}
	status, body, err := c.exchange(c.http, req, csrfAction)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", statusError(csrfAction, status, body)
	}
	var response types.CSRFResponse
	if err := sonic.Unmarshal(body, &response); err != nil || response.Token == "" {
		return "", malformed(csrfAction, status, err)
	}
	c.SetCSRFToken(response.Token)
	return response.Token, nil
}
