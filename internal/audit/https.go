package audit

import (
	"context"
	"net/url"

	"github.com/nao1215/lightscan/internal/gather"
)

// IsOnHTTPSID identifies the HTTPS audit.
const IsOnHTTPSID = "is-on-https"

// IsOnHTTPS checks that the page and its subresources use HTTPS.
type IsOnHTTPS struct{}

// Meta implements Audit.
func (a *IsOnHTTPS) Meta() Meta {
	return Meta{
		ID:                IsOnHTTPSID,
		Title:             "Uses HTTPS",
		Description:       "All sites should be protected with HTTPS, even ones that don't handle sensitive data.",
		RequiredArtifacts: []string{gather.URLGathererName},
	}
}

// Audit implements Audit.
func (a *IsOnHTTPS) Audit(_ context.Context, actx *Context) (*Product, error) {
	u, err := artifact[gather.URLArtifact](actx, gather.URLGathererName)
	if err != nil {
		return nil, err
	}
	pageURL, err := url.Parse(u.FinalURL)
	if err != nil {
		return nil, err
	}
	pageSecure := pageURL.Scheme == "https"

	// Subresources are checked when network activity was recorded.
	var insecure []string
	if _, records, ok := pickPass(actx.Artifacts.NetworkRecords); ok {
		for _, r := range records {
			if !r.IsSecure() {
				insecure = append(insecure, r.URL)
			}
		}
	}

	p := &Product{
		Score:    binaryScore(pageSecure && len(insecure) == 0),
		RawValue: pageSecure && len(insecure) == 0,
		Details:  insecure,
	}
	switch {
	case !pageSecure:
		p.DebugString = "The page was not served over HTTPS."
	case len(insecure) > 0:
		p.DisplayValue = actx.Printer.Sprintf("%d insecure requests found", len(insecure))
	}
	return p, nil
}
