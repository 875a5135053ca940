package audit

import (
	"context"
	"fmt"

	"github.com/nao1215/lightscan/internal/gather"
)

// ContentWidthID identifies the content width audit.
const ContentWidthID = "content-width"

// ContentWidth checks that the content fits the viewport.
type ContentWidth struct{}

// Meta implements Audit.
func (a *ContentWidth) Meta() Meta {
	return Meta{
		ID:                ContentWidthID,
		Title:             "Content is sized correctly for the viewport",
		Description:       "If the width of your app's content doesn't match the width of the viewport, your app might not be optimized for mobile screens.",
		RequiredArtifacts: []string{gather.ViewportDimensionsGathererName},
	}
}

// Audit implements Audit.
func (a *ContentWidth) Audit(_ context.Context, actx *Context) (*Product, error) {
	dims, err := artifact[gather.ViewportDimensions](actx, gather.ViewportDimensionsGathererName)
	if err != nil {
		return nil, err
	}

	match := dims.ScrollWidth == dims.InnerWidth
	p := &Product{
		Score:    binaryScore(match),
		RawValue: match,
	}
	if !match {
		p.DebugString = fmt.Sprintf("The content scroll width (%dpx) does not match the viewport width (%dpx).",
			dims.ScrollWidth, dims.InnerWidth)
	}
	return p, nil
}
