package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// testEnv is a handler over a temporary SQLite store with a small
// inventory: two VRFs, a device and a VM with an interface each, and IP
// addresses in each VRF and outside any VRF.
type testEnv struct {
	store  *storage.SQLiteStorage
	server *httptest.Server

	prod, dev model.VRF
	device    model.Device
	vm        model.VirtualMachine
	iface     model.Interface
	ipProd    model.IPAddress // on the device interface, VRF prod
	ipFree    model.IPAddress // unassigned, VRF prod
	ipDev     model.IPAddress // unassigned, VRF dev
	ipNoVRF   model.IPAddress
}

// setupTestHandler serves a Handler as actor; nil means anonymous.
func setupTestHandler(t *testing.T, actor *model.Actor) *testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{store: store}
	env.seed(t)

	mux := http.NewServeMux()
	NewHandler(store).WithPageSize(50, 100).RegisterRoutes(mux)

	var handler http.Handler = mux
	if actor != nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mux.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
	env.server = httptest.NewServer(RequestIDMiddleware(handler))
	t.Cleanup(env.server.Close)

	return env
}

func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	env.prod = model.VRF{Name: "PROD", RD: "65000:1"}
	must(env.store.CreateVRF(ctx, &env.prod))
	env.dev = model.VRF{Name: "DEV", RD: "65000:2"}
	must(env.store.CreateVRF(ctx, &env.dev))

	env.device = model.Device{Name: "sw-core-01"}
	must(env.store.CreateDevice(ctx, &env.device))
	env.iface = model.Interface{DeviceID: env.device.ID, Name: "eth0"}
	must(env.store.CreateInterface(ctx, &env.iface))

	env.vm = model.VirtualMachine{Name: "vm-billing"}
	must(env.store.CreateVirtualMachine(ctx, &env.vm))

	env.ipProd = model.IPAddress{Address: "10.0.0.1/24", VRFID: model.ID(env.prod.ID),
		AssignedObjectType: model.AssignedToInterface, AssignedObjectID: model.ID(env.iface.ID)}
	env.ipFree = model.IPAddress{Address: "10.0.0.2/24", VRFID: model.ID(env.prod.ID)}
	env.ipDev = model.IPAddress{Address: "10.1.0.1/24", VRFID: model.ID(env.dev.ID)}
	env.ipNoVRF = model.IPAddress{Address: "192.168.0.1/24"}
	for _, ip := range []*model.IPAddress{&env.ipProd, &env.ipFree, &env.ipDev, &env.ipNoVRF} {
		must(env.store.CreateIPAddress(ctx, ip))
	}
}

// createImpact stores an impact directly.
func (env *testEnv) createImpact(t *testing.T, impact *model.Impact) *model.Impact {
	t.Helper()
	if err := env.store.CreateImpact(context.Background(), impact, storage.WriteOptions{}); err != nil {
		t.Fatalf("Failed to create impact: %v", err)
	}
	return impact
}

// do sends body as JSON (a string is sent verbatim) and returns the
// response status and body.
func (env *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func decodeJSON[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("Failed to decode response %s: %v", data, err)
	}
	return v
}

func impactPath(id int64) string {
	return BasePath + "impact/" + strconv.FormatInt(id, 10) + "/"
}
