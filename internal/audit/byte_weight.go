package audit

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/nao1215/lightscan/internal/model"
)

// TotalByteWeightID identifies the total byte weight audit.
const TotalByteWeightID = "total-byte-weight"

// Scoring curve for total byte weight, in bytes.
const (
	byteWeightMedian = 4000 * 1024
	byteWeightPODR   = 2500 * 1024

	// byteWeightTopRequests is how many of the largest requests are listed.
	byteWeightTopRequests = 10
)

// ByteWeightItem is one request in the total byte weight details.
type ByteWeightItem struct {
	URL          string `json:"url"`
	TransferSize int64  `json:"transfer_size"`
}

// TotalByteWeight sums the bytes transferred while loading the page.
type TotalByteWeight struct{}

// Meta implements Audit.
func (a *TotalByteWeight) Meta() Meta {
	return Meta{
		ID:                TotalByteWeightID,
		Title:             "Avoids enormous network payloads",
		Description:       "Network transfer size costs users real money and is highly correlated with long load times.",
		RequiredArtifacts: []string{model.ArtifactNetworkRecords},
	}
}

// Audit implements Audit.
func (a *TotalByteWeight) Audit(_ context.Context, actx *Context) (*Product, error) {
	_, records, ok := pickPass(actx.Artifacts.NetworkRecords)
	if !ok {
		return nil, fmt.Errorf("no network records")
	}

	var total int64
	items := make([]ByteWeightItem, 0, len(records))
	for _, r := range records {
		if r.FromDiskCache || r.TransferSize <= 0 {
			continue
		}
		total += r.TransferSize
		items = append(items, ByteWeightItem{URL: r.URL, TransferSize: r.TransferSize})
	}
	slices.SortStableFunc(items, func(a, b ByteWeightItem) int {
		return cmp.Compare(b.TransferSize, a.TransferSize)
	})
	if len(items) > byteWeightTopRequests {
		items = items[:byteWeightTopRequests]
	}

	return &Product{
		Score:        logNormalScore(float64(total), byteWeightMedian, byteWeightPODR),
		RawValue:     total,
		DisplayValue: actx.Printer.Sprintf("Total size was %d KB", (total+512)/1024),
		Details:      items,
	}, nil
}
