package p2p

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/log"
)

// Fetcher retrieves a blob by ticket from the underlying content-addressed
// transport, reporting incremental progress via onProgress. It is a
// capability interface; the real transport, which lives outside this
// module, implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ticket BlobTicket, onProgress func(downloaded, total int64)) ([]byte, error)
}

// DownloadUpdate reports a content-addressed transfer's progress, keyed by
// the blob hash the consumer correlates back to a TrainingResult's
// commitment hash.
type DownloadUpdate struct {
	Hash       crypto.Hash
	Delta      int64
	Downloaded int64
	Total      int64
	Done       bool
	Err        error  // non-nil only on Done, when the transfer failed
	Blob       []byte // set only on a successful Done update
}

// DownloadManager tracks active blob transfers keyed by hash, multiplexing
// their progress onto a single update channel and tolerating per-stream
// errors: a failed download is dropped and logged rather than aborting any
// other in-flight transfer.
type DownloadManager struct {
	fetcher Fetcher
	sem     *semaphore.Weighted
	log     *log.Logger

	mu     sync.Mutex
	active map[crypto.Hash]context.CancelFunc
}

// NewDownloadManager creates a DownloadManager bounding concurrent
// transfers to maxConcurrent.
func NewDownloadManager(fetcher Fetcher, maxConcurrent int64) *DownloadManager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &DownloadManager{
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(maxConcurrent),
		log:     log.Module("p2p"),
		active:  make(map[crypto.Hash]context.CancelFunc),
	}
}

// Start begins fetching ticket's blob, returning a channel that receives
// progress updates and is closed once the transfer finishes (successfully
// or not -- the final update's Done is true and Err reports failure, if
// any). If ticket.Hash is already being fetched, Start returns a nil
// channel and ErrAlreadyDownloading and begins no new fetch.
func (m *DownloadManager) Start(ctx context.Context, ticket BlobTicket) (<-chan DownloadUpdate, error) {
	m.mu.Lock()
	if _, inFlight := m.active[ticket.Hash]; inFlight {
		m.mu.Unlock()
		return nil, ErrAlreadyDownloading
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	m.active[ticket.Hash] = cancel
	m.mu.Unlock()

	updates := make(chan DownloadUpdate, 16)

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.active, ticket.Hash)
			m.mu.Unlock()
			close(updates)
			cancel()
		}()

		if err := m.sem.Acquire(fetchCtx, 1); err != nil {
			updates <- DownloadUpdate{Hash: ticket.Hash, Done: true, Err: err}
			return
		}
		defer m.sem.Release(1)

		var lastDownloaded int64
		blob, err := m.fetcher.Fetch(fetchCtx, ticket, func(downloaded, total int64) {
			delta := downloaded - lastDownloaded
			lastDownloaded = downloaded
			select {
			case updates <- DownloadUpdate{Hash: ticket.Hash, Delta: delta, Downloaded: downloaded, Total: total}:
			case <-fetchCtx.Done():
			}
		})
		if err != nil {
			m.log.Warn("p2p: blob download failed", "hash", ticket.Hash, "error", err)
			updates <- DownloadUpdate{Hash: ticket.Hash, Done: true, Err: err}
			return
		}
		updates <- DownloadUpdate{Hash: ticket.Hash, Downloaded: int64(len(blob)), Total: int64(len(blob)), Done: true, Blob: blob}
	}()

	return updates, nil
}

// ErrAlreadyDownloading is returned by Start when the same blob hash is
// already being fetched.
var ErrAlreadyDownloading = errAlreadyDownloading{}

type errAlreadyDownloading struct{}

func (errAlreadyDownloading) Error() string { return "p2p: blob already downloading" }

// Cancel aborts an in-flight download for hash, if any.
func (m *DownloadManager) Cancel(hash crypto.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.active[hash]; ok {
		cancel()
	}
}

// ActiveCount reports how many transfers are currently in flight.
func (m *DownloadManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
