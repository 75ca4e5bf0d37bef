package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// fileClient serves raw agency rows from local JSON extracts. Each file holds
// the JSON array a Socrata export produces, named <source>_<key>.json, e.g.
// hpd_1013540020.json for HPD rows keyed by BBL. A missing file means the
// extract has no rows for that key, not a source failure.
type fileClient struct {
	dir string
}

func newFileClient(dir string) *fileClient {
	return &fileClient{dir: dir}
}

func (c *fileClient) load(source, key string) ([]json.RawMessage, error) {
	key = strings.ReplaceAll(key, string(os.PathSeparator), "_")
	path := filepath.Join(c.dir, fmt.Sprintf("%s_%s.json", source, key))

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read extract %q: %w", path, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse extract %q: %w", path, err)
	}
	return rows, nil
}

func (c *fileClient) ViolationsForBBL(ctx context.Context, bbl string) ([]json.RawMessage, error) {
	return c.load("hpd", bbl)
}

func (c *fileClient) PermitsForBIN(ctx context.Context, bin string) ([]json.RawMessage, error) {
	return c.load("dob", bin)
}

func (c *fileClient) CollectionForDistrict(ctx context.Context, district string) ([]json.RawMessage, error) {
	return c.load("dsny_schedule", district)
}

func (c *fileClient) SummonsesForAddress(ctx context.Context, address string) ([]json.RawMessage, error) {
	return c.load("dsny_summons", strings.ReplaceAll(strings.ToUpper(address), " ", "_"))
}

func (c *fileClient) EmissionsForBBL(ctx context.Context, bbl string) ([]json.RawMessage, error) {
	return c.load("ll97", bbl)
}
