package audit

import (
	"context"

	"github.com/mafredri/cdp/protocol/serviceworker"

	"github.com/nao1215/lightscan/internal/driver"
	"github.com/nao1215/lightscan/internal/gather"
)

// ServiceWorkerID identifies the service worker audit.
const ServiceWorkerID = "service-worker"

// ServiceWorker checks that an activated service worker controls the
// page's origin.
type ServiceWorker struct{}

// Meta implements Audit.
func (a *ServiceWorker) Meta() Meta {
	return Meta{
		ID:                ServiceWorkerID,
		Title:             "Registers a service worker",
		Description:       "The service worker is the technology that enables your app to use many Progressive Web App features, such as offline and push notifications.",
		RequiredArtifacts: []string{gather.ServiceWorkerGathererName, gather.URLGathererName},
	}
}

// Audit implements Audit.
func (a *ServiceWorker) Audit(_ context.Context, actx *Context) (*Product, error) {
	sw, err := artifact[gather.ServiceWorkerArtifact](actx, gather.ServiceWorkerGathererName)
	if err != nil {
		return nil, err
	}
	u, err := artifact[gather.URLArtifact](actx, gather.URLGathererName)
	if err != nil {
		return nil, err
	}
	pageOrigin, err := driver.Origin(u.FinalURL)
	if err != nil {
		return nil, err
	}

	found := false
	for _, v := range sw.Versions {
		if v.Status != serviceworker.VersionStatusActivated {
			continue
		}
		if origin, err := driver.Origin(v.ScriptURL); err == nil && origin == pageOrigin {
			found = true
			break
		}
	}

	p := &Product{
		Score:    binaryScore(found),
		RawValue: found,
	}
	if !found {
		p.DebugString = "No activated service worker controls " + pageOrigin + "."
	}
	return p, nil
}
