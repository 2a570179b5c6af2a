//go:build linux

package cellular

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExecuteBindsToLoopbackInterface(t *testing.T) {
	ifi, err := net.InterfaceByName("lo")
	if err != nil || ifi.Flags&net.FlagUp == 0 {
		t.Skip("loopback interface lo is not available")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"check_id":"c1","code":"x"}`))
	}))
	defer srv.Close()

	out := New("lo", WithTimeout(5*time.Second)).ExecuteOverCellular(context.Background(), srv.URL)
	if ne, ok := out.(NetworkError); ok && strings.Contains(ne.Description, "not permitted") {
		t.Skipf("SO_BINDTODEVICE not permitted here: %s", ne.Description)
	}
	res, ok := out.(HTTPResult)
	if !ok {
		t.Fatalf("expected HTTPResult, got %#v", out)
	}
	if res.Status != http.StatusOK || res.Body != (ExchangeCode{CheckID: "c1", Code: "x"}) {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestBindControlSetsDevice(t *testing.T) {
	ifi, err := net.InterfaceByName("lo")
	if err != nil {
		t.Skip("loopback interface lo is not available")
	}
	control, err := bindControl(ifi)
	if err != nil {
		t.Fatalf("bindControl: %v", err)
	}
	ln, err := (&net.ListenConfig{Control: control}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		if strings.Contains(err.Error(), "not permitted") {
			t.Skipf("SO_BINDTODEVICE not permitted here: %v", err)
		}
		t.Fatalf("listen on bound socket: %v", err)
	}
	ln.Close()
}
