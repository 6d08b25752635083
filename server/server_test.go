package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/wire"
)

func validConfig() coordinator.Config {
	return coordinator.Config{
		MinClients:           1,
		MaxClients:           10,
		WarmupTime:           1,
		CooldownTime:         1,
		MaxRoundTrainTime:    60,
		WitnessNodes:         2,
		VerificationPercent:  50,
		WitnessQuorum:        1,
		BatchesPerRound:      1,
		DataIndiciesPerBatch: 1,
		RoundsPerEpoch:       1,
		TotalSteps:           100,
		InitMinClients:       1,
		WitnessBloomSize:     1024,
	}
}

func validModel() coordinator.Model {
	return coordinator.Model{LLM: &coordinator.LLMModel{
		Architecture: "llama",
		MaxSeqLen:    2048,
		DataType:     "bf16",
	}}
}

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	coord, err := coordinator.New("test-run", validConfig(), validModel(), 16, 16)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	if err := coord.Resume(1000); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	return coord
}

func startTestServer(t *testing.T, coord *coordinator.Coordinator) (net.Addr, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, err := New(Config{TickInterval: 20 * time.Millisecond}, coord)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln, func() uint64 { return 7 })
	return ln.Addr(), cancel
}

func dialAndHandshake(t *testing.T, addr net.Addr) (net.Conn, crypto.PrivateKey) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	challenge, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read challenge: %v", err)
	}
	_, walletPriv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	_, p2pPriv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	resp := types.ToSignedBytes(walletPriv, p2pPriv, challenge)
	if err := wire.WriteFrame(conn, resp); err != nil {
		t.Fatalf("write handshake response: %v", err)
	}
	return conn, walletPriv
}

func TestHandshakeAndJoinFlow(t *testing.T) {
	coord := newTestCoordinator(t)
	addr, cancel := startTestServer(t, coord)
	defer cancel()

	conn, _ := dialAndHandshake(t, addr)
	defer conn.Close()

	peerFrame, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read peer list: %v", err)
	}
	peerMsg, err := wire.UnmarshalServerMessage(peerFrame)
	if err != nil {
		t.Fatalf("unmarshal peer list: %v", err)
	}
	if peerMsg.P2PConnect == nil {
		t.Fatal("expected P2PConnect frame first")
	}

	snapFrame, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	snapMsg, err := wire.UnmarshalServerMessage(snapFrame)
	if err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapMsg.Coordinator == nil || snapMsg.Coordinator.RunID != "test-run" {
		t.Fatalf("unexpected snapshot: %+v", snapMsg.Coordinator)
	}

	join := wire.ClientMessage{Join: &wire.JoinMessage{RunID: "test-run"}}
	if err := wire.WriteFrame(conn, join.Marshal()); err != nil {
		t.Fatalf("write join: %v", err)
	}

	updateFrame, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read post-join snapshot: %v", err)
	}
	updateMsg, err := wire.UnmarshalServerMessage(updateFrame)
	if err != nil {
		t.Fatalf("unmarshal post-join snapshot: %v", err)
	}
	if updateMsg.Coordinator == nil {
		t.Fatal("expected a coordinator snapshot broadcast after join")
	}
}

func TestDispatchRejectsSignerMismatch(t *testing.T) {
	coord := newTestCoordinator(t)
	addr, cancel := startTestServer(t, coord)
	defer cancel()

	conn, _ := dialAndHandshake(t, addr)
	defer conn.Close()

	// Drain the welcome frames (peer list, snapshot).
	if _, err := wire.ReadFrame(conn); err != nil {
		t.Fatalf("drain peer list: %v", err)
	}
	if _, err := wire.ReadFrame(conn); err != nil {
		t.Fatalf("drain snapshot: %v", err)
	}

	var wrongSigner types.ClientId
	wrongSigner.Wallet[0] = 0xAA
	witnessMsg := wire.ClientMessage{Witness: &wire.WitnessMessage{
		Signer:  wrongSigner,
		Witness: coordinator.Witness{Index: 0},
	}}
	if err := wire.WriteFrame(conn, witnessMsg.Marshal()); err != nil {
		t.Fatalf("write witness: %v", err)
	}

	// The server logs and continues rather than closing the connection; a
	// well-formed follow-up frame should still be processed, proving the
	// session survived the rejected dispatch.
	join := wire.ClientMessage{Join: &wire.JoinMessage{RunID: "test-run"}}
	if err := wire.WriteFrame(conn, join.Marshal()); err != nil {
		t.Fatalf("write join: %v", err)
	}
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("expected broadcast after successful join following rejected witness: %v", err)
	}
	if _, err := wire.UnmarshalServerMessage(frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}
