package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tbcnet/gateway/internal/admin"
	"github.com/tbcnet/gateway/internal/capability"
	"github.com/tbcnet/gateway/internal/envelope"
	"github.com/tbcnet/gateway/internal/replay"
	"github.com/tbcnet/gateway/internal/router"
)

func silentLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(bytes.NewBuffer(nil))
	return logrus.NewEntry(l)
}

func testRouter() *router.Router {
	registry := capability.NewMemoryRegistry(&capability.MerchantProfile{
		ID: "prof-a", Asset: "USDC", Whitelisted: true, MerchantAddress: "0xmerchant",
	})
	caps := capability.Set{
		Registry:  registry,
		RPC:       capability.NewMemoryRPCClient(),
		Policy:    capability.NewMemoryPolicyStore(),
		Escrow:    capability.NewMemoryEscrowState(),
		ZK:        capability.NewMemoryZKVerifier(nil),
		Nullifier: capability.NewMemoryNullifierStore(),
	}
	caps.Policy.(*capability.MemoryPolicyStore).Seed("prof-a", "buyer", &capability.SessionKeyPolicy{ChainID: 369, SpendLimit: 5000})
	return router.New(replay.New(0, 0), caps, envelope.Options{}, nil)
}

func TestTGPHTTPEndpoint(t *testing.T) {
	r := testRouter()
	mux := NewTGPRouter(r, "/tgp/ws", "*", func() HealthInfo {
		return HealthInfo{Status: "ok", Version: "v0.1.0", Protocol: "TGP-3.2", Timestamp: time.Now()}
	}, silentLogger())

	srv := httptest.NewServer(mux)
	defer srv.Close()

	body := `{"type":"QUERY","id":"q1","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`
	resp, err := http.Post(srv.URL+"/tgp", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := testRouter()
	mux := NewTGPRouter(r, "/tgp/ws", "*", func() HealthInfo {
		return HealthInfo{Status: "ok", Protocol: "TGP-3.2"}
	}, silentLogger())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	r := testRouter()
	mux := NewTGPRouter(r, "/tgp/ws", "*", func() HealthInfo { return HealthInfo{} }, silentLogger())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tgp/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	body := `{"type":"QUERY","id":"q1","intent":{"verb":"PAY","party":"buyer","mode":"SHIELDED"},"chain_id":369,"payment_profile":"prof-a","amount":1000,"asset":"USDC","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(body)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(msg), `"ACK"`) {
		t.Fatalf("expected ACK response, got %s", msg)
	}
}

func TestWebSocketRejectsBinaryFrames(t *testing.T) {
	r := testRouter()
	mux := NewTGPRouter(r, "/tgp/ws", "*", func() HealthInfo { return HealthInfo{} }, silentLogger())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tgp/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(msg), "TBC_WS_BINARY_REJECTED") {
		t.Fatalf("expected TBC_WS_BINARY_REJECTED, got %s", msg)
	}
}

func TestAdminHealthEndpoint(t *testing.T) {
	roster := admin.NewRoster()
	auth := admin.NewAuthenticator(roster, admin.NewNonceLog(admin.MaxRequestAge))
	ctrl := admin.NewController(auth, admin.NewHandler(admin.Dependencies{}), nil)
	mux := NewAdminRouter(ctrl, func() AdminHealthInfo {
		return AdminHealthInfo{Status: "ok", Service: "tbc-gateway", TBCID: "tbc-primary"}
	}, "*", silentLogger())

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/health")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAdminExecRejectsMalformedBody(t *testing.T) {
	roster := admin.NewRoster()
	auth := admin.NewAuthenticator(roster, admin.NewNonceLog(admin.MaxRequestAge))
	ctrl := admin.NewController(auth, admin.NewHandler(admin.Dependencies{}), nil)
	mux := NewAdminRouter(ctrl, func() AdminHealthInfo { return AdminHealthInfo{} }, "*", silentLogger())

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/exec", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
