package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/tidwall/gjson"

	"sheetrelay/internal/errors"
	"sheetrelay/models"
)

type uploadState int

const (
	stateIdle uploadState = iota
	stateSessionOpen
	stateStreaming
	stateTransient
	stateDone
	stateFatal
)

func (s uploadState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSessionOpen:
		return "session-open"
	case stateStreaming:
		return "streaming"
	case stateTransient:
		return "transient"
	case stateDone:
		return "done"
	case stateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UploadLargeFile streams localPath into remoteFolder/remoteFilename through
// an upload session, replacing any existing file. Each attempt opens a new
// session and restarts from byte 0. Conflict, lock, throttling and server
// errors are retried up to maxRetries attempts with exponential backoff;
// other client errors fail at once.
func (c *Client) UploadLargeFile(ctx context.Context, localPath, remoteFolder, remoteFilename string, chunkSize int64, maxRetries int) (*models.DriveItem, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot open %s: %v", localPath, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot stat %s: %v", localPath, err))
	}
	size := info.Size()
	if size == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("refusing to upload empty file %s", localPath))
	}

	remotePath := joinPath(remoteFolder, remoteFilename)
	buf := make([]byte, min(chunkSize, size))

	var (
		state      = stateIdle
		attempt    int
		uploadURL  string
		offset     int64
		item       *models.DriveItem
		lastErr    error
		fromStream bool
	)
	for {
		switch state {
		case stateIdle:
			attempt++
			offset = 0
			fromStream = false
			uploadURL, lastErr = c.createUploadSession(ctx, remotePath)
			if lastErr != nil {
				state = c.classifyUploadFailure(ctx, lastErr, false)
				continue
			}
			c.logger.Debug("upload session opened for %s (attempt %d/%d)", remotePath, attempt, maxRetries)
			state = stateSessionOpen

		case stateSessionOpen, stateStreaming:
			var done bool
			item, offset, done, lastErr = c.putChunk(ctx, uploadURL, f, buf, offset, size)
			switch {
			case lastErr != nil:
				fromStream = true
				state = c.classifyUploadFailure(ctx, lastErr, true)
			case done:
				state = stateDone
			default:
				state = stateStreaming
			}

		case stateTransient:
			if attempt >= maxRetries {
				if StatusOf(lastErr) != 0 {
					return nil, errors.UploadExhausted(attempt, lastErr)
				}
				return nil, lastErr
			}
			delay := c.backoff(attempt, retryAfterOf(lastErr))
			where := "session"
			if fromStream {
				where = "chunk"
			}
			c.logger.Warn("upload %s for %s failed on attempt %d/%d: %v; retrying in %s",
				where, remotePath, attempt, maxRetries, lastErr, delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			state = stateIdle

		case stateDone:
			if item.Name == "" {
				item.Name = remoteFilename
			}
			c.logger.Info("uploaded %s (%d bytes, %d attempt(s))", remotePath, size, attempt)
			return item, nil

		case stateFatal:
			return nil, lastErr
		}
	}
}

// classifyUploadFailure decides between retrying with a fresh session and
// failing the upload.
func (c *Client) classifyUploadFailure(ctx context.Context, err error, duringStream bool) uploadState {
	if ctx.Err() != nil {
		return stateFatal
	}
	status := StatusOf(err)
	switch {
	case status == 0:
		// transport failure or timeout
		return stateTransient
	case status == http.StatusConflict, status == http.StatusLocked, status == http.StatusTooManyRequests:
		return stateTransient
	case status >= 500:
		return stateTransient
	case status == http.StatusNotFound && duringStream:
		// the session expired under us
		return stateTransient
	default:
		return stateFatal
	}
}

func (c *Client) createUploadSession(ctx context.Context, remotePath string) (string, error) {
	payload := map[string]interface{}{
		"item": map[string]interface{}{
			"@microsoft.graph.conflictBehavior": "replace",
		},
	}
	resp, err := c.doJSON(ctx, http.MethodPost, c.itemURL(remotePath)+"/createUploadSession", payload)
	if err != nil {
		return "", err
	}
	uploadURL := gjson.GetBytes(resp.body, "uploadUrl").String()
	if uploadURL == "" {
		return "", fmt.Errorf("upload session for %s has no uploadUrl", remotePath)
	}
	return uploadURL, nil
}

// putChunk sends the next contiguous byte range. It reports done when the
// service returns the completed item.
func (c *Client) putChunk(ctx context.Context, uploadURL string, f io.ReaderAt, buf []byte, offset, size int64) (*models.DriveItem, int64, bool, error) {
	length := min(int64(len(buf)), size-offset)
	if length <= 0 {
		return nil, offset, false, fmt.Errorf("upload session still open after %d of %d bytes", offset, size)
	}
	chunk := buf[:length]
	if n, err := f.ReadAt(chunk, offset); err != nil && !(err == io.EOF && int64(n) == length) {
		return nil, offset, false, errors.LocalPersistenceError("upload source", err)
	}
	end := offset + length - 1

	resp, err := c.sendOnce(ctx, request{
		method:      http.MethodPut,
		url:         uploadURL,
		body:        chunk,
		contentType: "application/octet-stream",
		headers:     map[string]string{"Content-Range": fmt.Sprintf("bytes %d-%d/%d", offset, end, size)},
		anonymous:   true,
		timeout:     c.transferTimeout,
	})
	if err != nil {
		return nil, offset, false, err
	}

	switch resp.status {
	case http.StatusOK, http.StatusCreated:
		return parseDriveItem(gjson.ParseBytes(resp.body)), end + 1, true, nil
	case http.StatusAccepted:
		return nil, end + 1, false, nil
	default:
		return nil, offset, false, newStatusError(http.MethodPut, redact(uploadURL), resp)
	}
}
