package graph

import (
	"context"
	"net/http"

	"sheetrelay/internal/errors"
	"sheetrelay/internal/fsutil"
)

// DownloadFile fetches remoteFolder/remoteFilename into localPath, replacing
// it atomically. It returns false without error when the remote file does
// not exist.
func (c *Client) DownloadFile(ctx context.Context, remoteFolder, remoteFilename, localPath string) (bool, error) {
	remotePath := joinPath(remoteFolder, remoteFilename)
	resp, err := c.send(ctx, request{
		method:  http.MethodGet,
		url:     c.itemURL(remotePath) + "/content",
		timeout: c.transferTimeout,
	})
	if err != nil {
		return false, errors.DownloadError(remotePath, err)
	}
	if resp.status == http.StatusNotFound {
		return false, nil
	}
	if resp.status != http.StatusOK {
		return false, errors.DownloadError(remotePath, newStatusError(http.MethodGet, remotePath, resp))
	}

	if err := fsutil.WriteFileAtomic(localPath, resp.body, 0o644); err != nil {
		return false, errors.LocalPersistenceError(localPath, err)
	}
	c.logger.Debug("downloaded %s to %s (%d bytes)", remotePath, localPath, len(resp.body))
	return true, nil
}
