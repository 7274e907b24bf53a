// Package notify publishes upload events to websocket subscribers and an optional Unix socket listener.
package notify

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

// MaxPayloadSize bounds one framed notification.
const MaxPayloadSize = 32 * 1024 // 32KB

// UnixSocketTimeout is the timeout for Unix socket operations
var UnixSocketTimeout = 3 * time.Second

// Broadcaster receives every published notification. *notifyhub.Hub implements it.
type Broadcaster interface {
	Broadcast(notification *types.Notification)
}

// Notifier publishes server events. A nil *Notifier discards everything.
type Notifier struct {
	hub        Broadcaster
	socketPath string
}

// New creates a notifier. hub may be nil; an empty socketPath disables the socket listener.
func New(hub Broadcaster, socketPath string) *Notifier {
	return &Notifier{hub: hub, socketPath: socketPath}
}

// Publish broadcasts n to the hub and forwards it to the socket listener in the background.
func (n *Notifier) Publish(notification *types.Notification) {
	if n == nil || notification == nil {
		return
	}
	if n.hub != nil {
		n.hub.Broadcast(notification)
	}
	if n.socketPath != "" {
		go func() {
			if err := SendNotification(notification, n.socketPath); err != nil {
				tool.DefaultLogger.Debugf("[UnixSocket] %v", err)
			}
		}()
	}
}

// ImageStored announces a newly stored image.
func (n *Notifier) ImageStored(productID int64, img types.Image) {
	n.Publish(&types.Notification{
		Type:    types.NotifyTypeUploadEnd,
		Title:   "Image Uploaded",
		Message: fmt.Sprintf("%s image stored for product %d", img.Category.DisplayName(), productID),
		Data: map[string]any{
			"productId":  productID,
			"imageId":    img.ID,
			"imageType":  string(img.Category),
			"imageUrl":   img.URL,
			"storedName": img.Name,
		},
	})
}

// UploadFailed announces an upload the server could not store.
func (n *Notifier) UploadFailed(productID int64, category types.Category, reason string) {
	n.Publish(&types.Notification{
		Type:    types.NotifyTypeUploadFailed,
		Title:   "Upload Failed",
		Message: reason,
		Data: map[string]any{
			"productId": productID,
			"imageType": string(category),
		},
	})
}

// ImageDeleted announces a removed image.
func (n *Notifier) ImageDeleted(productID int64, img types.Image) {
	n.Publish(&types.Notification{
		Type:    types.NotifyTypeImageDeleted,
		Title:   "Image Deleted",
		Message: fmt.Sprintf("%s image removed from product %d", img.Category.DisplayName(), productID),
		Data: map[string]any{
			"productId": productID,
			"imageId":   img.ID,
			"imageType": string(img.Category),
		},
	})
}

// ProductUpdated announces a form submission. complete marks a finished submission.
func (n *Notifier) ProductUpdated(p *types.Product, complete bool) {
	kind, title := types.NotifyTypeProductUpdate, "Product Updated"
	if complete {
		kind, title = types.NotifyTypeSubmitted, "Submission Complete"
	}
	n.Publish(&types.Notification{
		Type:    kind,
		Title:   title,
		Message: p.ProductName,
		Data: map[string]any{
			"productId": p.ID,
			"images":    len(p.Images),
		},
	})
}

// SendNotification writes one length-prefixed JSON notification to the Unix socket at socketPath
// and checks the listener's reply for an error field.
func SendNotification(notification *types.Notification, socketPath string) error {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return fmt.Errorf("unix socket not found: %s", socketPath)
	}

	payload, err := sonic.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to serialize notification data: %v", err)
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	conn, err := net.DialTimeout("unix", socketPath, UnixSocketTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to Unix socket %s: %v", socketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close Unix socket connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(UnixSocketTimeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set deadline: %v", err)
	}
	if err := WriteFrame(conn, payload); err != nil {
		return err
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read response from Unix socket: %v", err)
	}
	if n > 0 {
		var response map[string]any
		if err := sonic.Unmarshal(buf[:n], &response); err != nil {
			tool.DefaultLogger.Debugf("Unix socket response (raw): %s", string(buf[:n]))
		} else if errMsg, ok := response["error"].(string); ok && errMsg != "" {
			return fmt.Errorf("listener returned error: %s", errMsg)
		}
	}
	tool.DefaultLogger.Debugf("[UnixSocket] Notification sent: %s - %s", notification.Type, notification.Title)
	return nil
}

// WriteFrame writes a 4 byte little-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var lengthBuf [4]byte
	binary.LittleEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to write length to Unix socket: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload to Unix socket: %v", err)
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lengthBuf[:])
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("frame too large: %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
