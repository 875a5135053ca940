package model

import (
	"strings"
	"time"
)

// NetworkRecord describes one request observed while a pass was recording
// network activity.
type NetworkRecord struct {
	// RequestID is the browser's request identifier.
	RequestID string `json:"request_id"`

	// URL is the request URL after redirects are resolved for this hop.
	URL string `json:"url"`

	// Method is the HTTP method.
	Method string `json:"method"`

	// ResourceType is the browser's resource classification (Document,
	// Script, Image, ...).
	ResourceType string `json:"resource_type,omitempty"`

	// StatusCode is the HTTP status. Zero when no response arrived.
	StatusCode int `json:"status_code,omitempty"`

	// MimeType is the response MIME type.
	MimeType string `json:"mime_type,omitempty"`

	// Protocol is the negotiated protocol, e.g. "h2" or "http/1.1".
	Protocol string `json:"protocol,omitempty"`

	// StartTime and EndTime are monotonic browser timestamps in seconds.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time,omitempty"`

	// TransferSize is the number of encoded bytes received over the network.
	TransferSize int64 `json:"transfer_size"`

	// FromDiskCache is true when the response was served from cache.
	FromDiskCache bool `json:"from_disk_cache,omitempty"`

	// FromServiceWorker is true when a service worker answered the request.
	FromServiceWorker bool `json:"from_service_worker,omitempty"`

	// Finished is true once loading finished or failed.
	Finished bool `json:"finished"`

	// Failed is true when loading failed. ErrorText holds the reason.
	Failed    bool   `json:"failed,omitempty"`
	ErrorText string `json:"error_text,omitempty"`
}

// Duration returns the time between request start and completion.
func (r *NetworkRecord) Duration() time.Duration {
	if !r.Finished || r.EndTime < r.StartTime {
		return 0
	}
	return time.Duration((r.EndTime - r.StartTime) * float64(time.Second))
}

// IsSecure reports whether the request used a secure scheme or is local data.
func (r *NetworkRecord) IsSecure() bool {
	for _, prefix := range []string{"https:", "wss:", "data:", "blob:", "about:", "chrome-extension:"} {
		if strings.HasPrefix(r.URL, prefix) {
			return true
		}
	}
	return false
}
