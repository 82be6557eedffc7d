package graph

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"sheetrelay/models"
)

func (c *Client) workbookURL(itemID, suffix string) string {
	return c.userURL() + "/drive/items/" + url.PathEscape(itemID) + "/workbook/" + suffix
}

// worksheetRef quotes a sheet name as an OData string key
func worksheetRef(sheet string) string {
	return "worksheets('" + url.PathEscape(strings.ReplaceAll(sheet, "'", "''")) + "')"
}

// ListWorksheets returns the worksheets of a workbook item
func (c *Client) ListWorksheets(ctx context.Context, itemID string) ([]models.Worksheet, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, c.workbookURL(itemID, "worksheets"), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var out []models.Worksheet
	for _, v := range gjson.GetBytes(resp.body, "value").Array() {
		out = append(out, models.Worksheet{
			ID:       v.Get("id").String(),
			Name:     v.Get("name").String(),
			Position: int(v.Get("position").Int()),
		})
	}
	return out, nil
}

// AddWorksheet adds a sheet and reports whether this call created it. A
// sheet that already exists is success with created false.
func (c *Client) AddWorksheet(ctx context.Context, itemID, name string) (bool, error) {
	_, err := c.doJSON(ctx, http.MethodPost, c.workbookURL(itemID, "worksheets/add"),
		map[string]string{"name": name})
	switch {
	case err == nil:
		return true, nil
	case StatusOf(err) == http.StatusConflict || errorCodeOf(err) == "ItemAlreadyExists":
		return false, nil
	default:
		return false, err
	}
}

// ListTables returns the structured tables of a workbook item
func (c *Client) ListTables(ctx context.Context, itemID string) ([]models.Table, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, c.workbookURL(itemID, "tables"), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var out []models.Table
	for _, v := range gjson.GetBytes(resp.body, "value").Array() {
		out = append(out, models.Table{
			ID:   v.Get("id").String(),
			Name: v.Get("name").String(),
		})
	}
	return out, nil
}

// AddTable converts address on sheet into a table whose first row is the header
func (c *Client) AddTable(ctx context.Context, itemID, sheet, address string) (*models.Table, error) {
	payload := map[string]interface{}{
		"address":    address,
		"hasHeaders": true,
	}
	resp, err := c.doJSON(ctx, http.MethodPost, c.workbookURL(itemID, worksheetRef(sheet)+"/tables/add"), payload)
	if err != nil {
		return nil, err
	}
	return &models.Table{
		ID:   gjson.GetBytes(resp.body, "id").String(),
		Name: gjson.GetBytes(resp.body, "name").String(),
	}, nil
}

// RenameTable gives a table the name later lookups search for
func (c *Client) RenameTable(ctx context.Context, itemID, tableID, name string) error {
	_, err := c.doJSON(ctx, http.MethodPatch,
		c.workbookURL(itemID, "tables/"+url.PathEscape(tableID)), map[string]string{"name": name})
	return err
}

// WriteRange sets the values of address on sheet
func (c *Client) WriteRange(ctx context.Context, itemID, sheet, address string, values [][]interface{}) error {
	target := c.workbookURL(itemID, worksheetRef(sheet)+"/range(address='"+url.PathEscape(address)+"')")
	_, err := c.doJSON(ctx, http.MethodPatch, target, map[string]interface{}{"values": values})
	return err
}

// AddTableRow appends one row of values to a table
func (c *Client) AddTableRow(ctx context.Context, itemID, tableIDOrName string, values []interface{}) error {
	payload := map[string]interface{}{
		"values": [][]interface{}{values},
	}
	_, err := c.doJSON(ctx, http.MethodPost,
		c.workbookURL(itemID, "tables/"+url.PathEscape(tableIDOrName)+"/rows/add"), payload)
	return err
}
