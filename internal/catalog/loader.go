// Package catalog loads the dataset catalog. The entry point calls
// LoadCatalog once; the returned slice is never mutated afterwards.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/buildmaster/internal/models"
)

// Parse decodes catalog records and converts them to datasets. Comments and
// trailing commas are accepted. Records without metadata paths are skipped.
func Parse(data []byte) ([]models.Dataset, error) {
	var records []Record
	if err := json.Unmarshal(jsonc.ToJSON(data), &records); err != nil {
		return nil, fmt.Errorf("parsing catalog JSON: %w", err)
	}

	datasets := make([]models.Dataset, 0, len(records))
	for i, rec := range records {
		if len(rec.MetadataPaths) == 0 {
			slog.Debug("skipping catalog record without metadata", "index", i, "url", rec.CloneURL)
			continue
		}

		curator, err := models.ParseCuratorKind(rec.Curator)
		if err != nil {
			return nil, &RecordError{Index: i, Err: err}
		}

		ds, err := models.NewDataset(rec.Organization, rec.CloneURL, rec.MetadataPaths, curator)
		if err != nil {
			return nil, &RecordError{Index: i, Err: err}
		}
		datasets = append(datasets, ds)
	}

	return datasets, nil
}

// LoadFromPath loads a catalog from a local file.
func LoadFromPath(path string) ([]models.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data)
}

// LoadFromURL loads a catalog from a remote URL.
func LoadFromURL(ctx context.Context, url string) ([]models.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching catalog: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return Parse(data)
}

// LoadCatalog loads one source, either a file path or an http(s) URL, and
// keeps the datasets matching keep.
func LoadCatalog(ctx context.Context, source string, keep Predicate) ([]models.Dataset, error) {
	var (
		datasets []models.Dataset
		err      error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		datasets, err = LoadFromURL(ctx, source)
	} else {
		datasets, err = LoadFromPath(source)
	}
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", source, err)
	}

	if keep == nil {
		keep = All
	}
	filtered := datasets[:0]
	for _, ds := range datasets {
		if keep(ds) {
			filtered = append(filtered, ds)
		}
	}

	slog.Debug("loaded catalog", "source", source, "records", len(datasets), "kept", len(filtered))
	return filtered, nil
}

// LoadAll loads several sources in parallel and concatenates them in source order.
func LoadAll(ctx context.Context, sources []string, keep Predicate) ([]models.Dataset, error) {
	parts := make([][]models.Dataset, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			datasets, err := LoadCatalog(ctx, src, keep)
			if err != nil {
				return err
			}
			parts[i] = datasets
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Dataset
	for _, p := range parts {
		all = append(all, p...)
	}
	return all, nil
}
