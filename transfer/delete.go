package transfer

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

const deleteAction = "Delete"

// DeleteImage removes a previously uploaded image with a form POST of image_id and image_type.
func (c *Client) DeleteImage(ctx context.Context, productID, imageID int64, category types.Category) (*types.DeleteResponse, error) {
	if err := checkContext(ctx, deleteAction); err != nil {
		return nil, err
	}
	endpoint := tool.BuildDeleteURL(c.cfg, productID)
	if endpoint == "" {
		return nil, &Error{Kind: ErrNotConfigured, Message: "Delete failed: delete URL not configured"}
	}

	form := url.Values{}
	form.Set("image_id", strconv.FormatInt(imageID, 10))
	form.Set("image_type", string(category))

	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode())))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := c.exchange(c.http, req, deleteAction)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(deleteAction, status, body)
	}

	var response types.DeleteResponse
	if err := sonic.Unmarshal(body, &response); err != nil {
		return nil, malformed(deleteAction, status, err)
	}
	if !response.Success {
		msg := response.Error
		if msg == "" {
			msg = "Failed to delete image"
		}
		return nil, &Error{Kind: ErrRejected, Status: status, Message: msg}
	}

	tool.DefaultLogger.Infof("[Delete] Removed %s image %d of product %d", category, imageID, productID)
	return &response, nil
}
