package graph

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"sheetrelay/internal/errors"
	"sheetrelay/models"
)

// Resolve looks up a drive item by path. A missing item is a NOT_FOUND error.
func (c *Client) Resolve(ctx context.Context, path string) (*models.DriveItem, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, c.itemURL(path), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return parseDriveItem(gjson.ParseBytes(resp.body)), nil
}

// EnsureFolder creates name under parentPath. An existing folder of that name
// is success.
func (c *Client) EnsureFolder(ctx context.Context, parentPath, name string) error {
	payload := map[string]interface{}{
		"name":                              name,
		"folder":                            map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "fail",
	}
	_, err := c.doJSON(ctx, http.MethodPost, childrenURL(c.itemURL(parentPath)), payload,
		http.StatusOK, http.StatusCreated, http.StatusConflict)
	if err != nil {
		return errors.Wrapf(err, "failed to create folder %q", joinPath(parentPath, name))
	}
	return nil
}

// EnsureFolderPath walks fullPath from the root, creating each missing
// segment. Existing segments are left alone.
func (c *Client) EnsureFolderPath(ctx context.Context, fullPath string) error {
	current := ""
	for _, segment := range strings.Split(strings.Trim(fullPath, "/"), "/") {
		if segment == "" {
			continue
		}
		next := joinPath(current, segment)
		if _, err := c.Resolve(ctx, next); err != nil {
			if !errors.IsNotFound(err) {
				return err
			}
			if err := c.EnsureFolder(ctx, current, segment); err != nil {
				return err
			}
		}
		current = next
	}
	return nil
}

// PutContent creates or replaces a small file with a single request
func (c *Client) PutContent(ctx context.Context, path string, content []byte) (*models.DriveItem, error) {
	target := c.itemURL(path) + "/content"
	resp, err := c.send(ctx, request{
		method:      http.MethodPut,
		url:         target,
		body:        content,
		contentType: "application/octet-stream",
		timeout:     c.transferTimeout,
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusCreated {
		return nil, newStatusError(http.MethodPut, target, resp)
	}
	return parseDriveItem(gjson.ParseBytes(resp.body)), nil
}

func parseDriveItem(v gjson.Result) *models.DriveItem {
	return &models.DriveItem{
		ID:       v.Get("id").String(),
		Name:     v.Get("name").String(),
		WebURL:   v.Get("webUrl").String(),
		Size:     v.Get("size").Int(),
		ETag:     v.Get("eTag").String(),
		IsFolder: v.Get("folder").Exists(),
	}
}
