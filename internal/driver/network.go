package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mafredri/cdp/protocol/network"

	"github.com/nao1215/lightscan/internal/devtools"
	"github.com/nao1215/lightscan/internal/model"
)

// networkRecorder builds NetworkRecords from Network domain events.
type networkRecorder struct {
	mu      sync.Mutex
	records []*model.NetworkRecord
	byID    map[string]*model.NetworkRecord
	subs    []*devtools.Subscription
}

func newNetworkRecorder() *networkRecorder {
	return &networkRecorder{byID: make(map[string]*model.NetworkRecord)}
}

func (r *networkRecorder) onRequestWillBeSent(ev network.RequestWillBeSentReply) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A redirect reuses the request id: the previous hop ends here.
	id := string(ev.RequestID)
	if prev, ok := r.byID[id]; ok && ev.RedirectResponse != nil {
		applyResponse(prev, *ev.RedirectResponse)
		prev.EndTime = float64(ev.Timestamp)
		prev.Finished = true
	}

	rec := &model.NetworkRecord{
		RequestID:    id,
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		ResourceType: string(ev.Type),
		StartTime:    float64(ev.Timestamp),
	}
	r.records = append(r.records, rec)
	r.byID[id] = rec
}

func (r *networkRecorder) onResponseReceived(ev network.ResponseReceivedReply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[string(ev.RequestID)]
	if !ok {
		return
	}
	applyResponse(rec, ev.Response)
	if ev.Type != "" {
		rec.ResourceType = string(ev.Type)
	}
}

func (r *networkRecorder) onLoadingFinished(ev network.LoadingFinishedReply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[string(ev.RequestID)]
	if !ok {
		return
	}
	rec.EndTime = float64(ev.Timestamp)
	rec.TransferSize = int64(ev.EncodedDataLength)
	rec.Finished = true
}

func (r *networkRecorder) onLoadingFailed(ev network.LoadingFailedReply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[string(ev.RequestID)]
	if !ok {
		return
	}
	rec.EndTime = float64(ev.Timestamp)
	rec.Finished = true
	rec.Failed = true
	rec.ErrorText = ev.ErrorText
	if ev.Canceled != nil && *ev.Canceled && rec.ErrorText == "" {
		rec.ErrorText = "canceled"
	}
}

func applyResponse(rec *model.NetworkRecord, resp network.Response) {
	if resp.URL != "" {
		rec.URL = resp.URL
	}
	rec.StatusCode = resp.Status
	rec.MimeType = resp.MimeType
	if resp.Protocol != nil {
		rec.Protocol = *resp.Protocol
	}
	rec.FromDiskCache = resp.FromDiskCache != nil && *resp.FromDiskCache
	rec.FromServiceWorker = resp.FromServiceWorker != nil && *resp.FromServiceWorker
	if resp.EncodedDataLength > 0 {
		rec.TransferSize = int64(resp.EncodedDataLength)
	}
}

func (r *networkRecorder) snapshot() []model.NetworkRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NetworkRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

// subscribe registers handler for method, decoding params into E.
func subscribe[E any](d *Driver, method string, handle func(E)) *devtools.Subscription {
	return d.conn.On(method, func(params json.RawMessage) {
		var ev E
		if err := json.Unmarshal(params, &ev); err != nil {
			d.logger.Warn("dropping malformed network event", "method", method, "error", err)
			return
		}
		handle(ev)
	})
}

// BeginNetworkCollect starts recording network requests.
func (d *Driver) BeginNetworkCollect(ctx context.Context) error {
	r := newNetworkRecorder()
	r.subs = []*devtools.Subscription{
		subscribe(d, "Network.requestWillBeSent", r.onRequestWillBeSent),
		subscribe(d, "Network.responseReceived", r.onResponseReceived),
		subscribe(d, "Network.loadingFinished", r.onLoadingFinished),
		subscribe(d, "Network.loadingFailed", r.onLoadingFailed),
	}

	d.mu.Lock()
	prev := d.network
	d.network = r
	d.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}

	if err := d.send(ctx, "Network.enable", nil); err != nil {
		d.mu.Lock()
		d.network = nil
		d.mu.Unlock()
		r.cancel()
		return fmt.Errorf("failed to enable network domain: %w", err)
	}
	return nil
}

// EndNetworkCollect stops recording and returns the requests in the order
// they were issued.
func (d *Driver) EndNetworkCollect(_ context.Context) ([]model.NetworkRecord, error) {
	d.mu.Lock()
	r := d.network
	d.network = nil
	d.mu.Unlock()
	if r == nil {
		return nil, ErrNetworkNotStarted
	}
	r.cancel()
	records := r.snapshot()
	d.logger.Debug("network collection complete", "requests", len(records))
	return records, nil
}

func (r *networkRecorder) cancel() {
	for _, s := range r.subs {
		s.Cancel()
	}
}
