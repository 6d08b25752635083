package p2p

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

func TestBlobTicketMarshalRoundTrip(t *testing.T) {
	ticket := BlobTicket{
		Hash:      crypto.Sha256([]byte("blob")),
		Providers: []string{"10.0.0.1:4001", "10.0.0.2:4001"},
	}
	b := ticket.Marshal()
	back, err := UnmarshalBlobTicket(b)
	if err != nil {
		t.Fatalf("UnmarshalBlobTicket: %v", err)
	}
	if back.Hash != ticket.Hash {
		t.Fatal("hash mismatch")
	}
	if len(back.Providers) != 2 || back.Providers[0] != ticket.Providers[0] || back.Providers[1] != ticket.Providers[1] {
		t.Fatalf("providers mismatch: %v", back.Providers)
	}
}

func TestAllowlistUpdateAndAllowed(t *testing.T) {
	al := NewAllowlist()
	if al.Len() != 0 {
		t.Fatal("expected empty allowlist")
	}

	var c1, c2 types.ClientId
	c1.Wallet[0], c1.P2P[0] = 1, 11
	c2.Wallet[0], c2.P2P[0] = 2, 22

	al.Update([]types.ClientId{c1, c2})
	if al.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", al.Len())
	}
	if wallet, ok := al.Allowed(c1.P2P); !ok || wallet != c1.Wallet {
		t.Fatal("c1 should be allowed")
	}
	var stranger types.P2PKey
	stranger[0] = 99
	if _, ok := al.Allowed(stranger); ok {
		t.Fatal("stranger should not be allowed")
	}

	al.Update([]types.ClientId{c2})
	if _, ok := al.Allowed(c1.P2P); ok {
		t.Fatal("c1 should be evicted after Update drops it")
	}
}

func TestTopicIsDeterministicPerRunID(t *testing.T) {
	a := Topic("run-a")
	b := Topic("run-a")
	c := Topic("run-b")
	if a != b {
		t.Fatal("same run id must yield same topic")
	}
	if a == c {
		t.Fatal("different run ids must yield different topics")
	}
}

func TestTrainingResultMarshalRoundTrip(t *testing.T) {
	priv, pub, _ := testKeyPair(t)
	data := []byte("gradient blob")
	commitment := types.SignCommitment(priv, data)
	tr := TrainingResult{
		Step:       3,
		BatchId:    types.BatchId{Start: 0, End: 99},
		Commitment: commitment,
		Ticket:     BlobTicket{Hash: crypto.Sha256(data), Providers: []string{"peer1"}},
	}
	b := tr.Marshal()
	back, err := UnmarshalTrainingResult(b)
	if err != nil {
		t.Fatalf("UnmarshalTrainingResult: %v", err)
	}
	if back.Step != tr.Step || back.BatchId != tr.BatchId {
		t.Fatalf("mismatch: %+v", back)
	}
	if !back.Commitment.Verify(pub) {
		t.Fatal("commitment should still verify after round trip")
	}
}

func testKeyPair(t *testing.T) (crypto.PrivateKey, crypto.PublicKey, error) {
	t.Helper()
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return priv, pub, nil
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ticket BlobTicket, onProgress func(downloaded, total int64)) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	onProgress(int64(len(f.data))/2, int64(len(f.data)))
	onProgress(int64(len(f.data)), int64(len(f.data)))
	return f.data, nil
}

func TestDownloadManagerSuccessAndFailureTolerated(t *testing.T) {
	ctx := context.Background()

	okMgr := NewDownloadManager(&fakeFetcher{data: []byte("hello world")}, 2)
	updates, err := okMgr.Start(ctx, BlobTicket{Hash: crypto.Sha256([]byte("a"))})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var final DownloadUpdate
	for u := range updates {
		final = u
	}
	if !final.Done || final.Err != nil {
		t.Fatalf("expected successful completion, got %+v", final)
	}
	if string(final.Blob) != "hello world" {
		t.Fatalf("blob mismatch: %q", final.Blob)
	}

	failMgr := NewDownloadManager(&fakeFetcher{err: errors.New("peer gone")}, 2)
	updates2, err := failMgr.Start(ctx, BlobTicket{Hash: crypto.Sha256([]byte("b"))})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var final2 DownloadUpdate
	for u := range updates2 {
		final2 = u
	}
	if !final2.Done || final2.Err == nil {
		t.Fatalf("expected a tolerated per-stream failure, got %+v", final2)
	}
	if failMgr.ActiveCount() != 0 {
		t.Fatal("manager should have no active transfers after failure")
	}
}

func TestDownloadManagerRejectsDuplicateInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := NewDownloadManager(&slowFetcher{}, 1)
	hash := crypto.Sha256([]byte("slow"))
	_, err := mgr.Start(ctx, BlobTicket{Hash: hash})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	_, err = mgr.Start(ctx, BlobTicket{Hash: hash})
	if !errors.Is(err, ErrAlreadyDownloading) {
		t.Fatalf("expected ErrAlreadyDownloading, got %v", err)
	}
}

type slowFetcher struct{}

func (slowFetcher) Fetch(ctx context.Context, ticket BlobTicket, onProgress func(downloaded, total int64)) ([]byte, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return []byte("done"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
