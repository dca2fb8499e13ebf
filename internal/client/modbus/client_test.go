// internal/client/modbus/client_test.go
package modbus

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nvparam/internal/flashfs"
	"github.com/tamzrod/nvparam/internal/param"
	"github.com/tamzrod/nvparam/internal/paramserver"
	"github.com/tamzrod/nvparam/internal/persistence"
	"github.com/tamzrod/nvparam/internal/regmap"
	server "github.com/tamzrod/nvparam/internal/server/modbus"
)

type node struct {
	reg     *param.Registry
	manager *persistence.Manager
	medium  *flashfs.MemMedium
	lock    *sync.Mutex
}

func newNode(t *testing.T, medium *flashfs.MemMedium) *node {
	t.Helper()

	tbl, err := param.NewTable([]param.Definition{
		{Var: "version", Name: "flow.param_version", Type: param.Int64, Max: param.Int64Value(100), Default: param.Int64Value(100)},
		{Var: "test_bool", Name: "flow.int_bool", Type: param.Bool8, Max: param.Bool8Value(1), Default: param.Bool8Value(1)},
		{Var: "test_int", Name: "flow.int_test", Type: param.Int64, Min: param.Int64Value(-12), Max: param.Int64Value(12), Default: param.Int64Value(6)},
		{Var: "test_float", Name: "flow.float_test", Type: param.Float32, Min: param.Float32Value(1.412), Max: param.Float32Value(4.2), Default: param.Float32Value(2.1)},
		{Var: "test_string", Name: "flow.string_test", Type: param.String, Default: param.StringValue("default_value")},
	})
	require.NoError(t, err)

	reg := param.New(tbl)
	m, err := persistence.New(reg, flashfs.NewStore(medium, nil), persistence.Config{
		Registry: "flow",
		Token:    1,
		Sectors:  flashfs.Trim(flashfs.DefaultSectorMap),
	})
	require.NoError(t, err)
	_, err = m.Initialize()
	require.NoError(t, err)

	return &node{reg: reg, manager: m, medium: medium, lock: &sync.Mutex{}}
}

func serve(t *testing.T, n *node) string {
	t.Helper()

	srv, err := server.New(server.Config{Timeout: 5 * time.Second}, []server.Unit{{
		ID:      1,
		Adapter: paramserver.New(n.reg, n.manager, nil),
		Lock:    n.lock,
	}})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})

	return ln.Addr().String()
}

func dial(t *testing.T, addr string, unit uint8) *Client {
	t.Helper()
	c, err := New(Config{Endpoint: addr, UnitID: unit, Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEndToEnd_ListAndRead(t *testing.T) {
	n := newNode(t, flashfs.NewMemMedium())
	c := dial(t, serve(t, n), 1)

	count, err := c.Count()
	require.NoError(t, err)
	require.Equal(t, 5, count)

	blocks, err := c.List()
	require.NoError(t, err)
	require.Len(t, blocks, 5)

	require.Equal(t, "flow.float_test", blocks[3].Name)
	require.Equal(t, param.Float32, blocks[3].Type)
	require.Equal(t, paramserver.RealValue(2.1), blocks[3].Value)
	require.Equal(t, paramserver.NumericValue{Kind: paramserver.KindReal, Real: 4.2}, blocks[3].Max)

	require.Equal(t, paramserver.StringValue("default_value"), blocks[4].Value)
	require.Equal(t, paramserver.NumericValue{}, blocks[4].Max)

	_, _, err = c.Find("no.such.param")
	require.True(t, errors.Is(err, ErrUnknownParameter))
}

func TestEndToEnd_SetSaveReload(t *testing.T) {
	medium := flashfs.NewMemMedium()
	n := newNode(t, medium)
	c := dial(t, serve(t, n), 1)

	idx, b, err := c.Find("flow.int_bool")
	require.NoError(t, err)
	require.NoError(t, c.Set(idx, b.Type, paramserver.BooleanValue(false)))

	idx, b, err = c.Find("flow.int_test")
	require.NoError(t, err)
	require.NoError(t, c.Set(idx, b.Type, paramserver.IntegerValue(-7)))

	idx, b, err = c.Find("flow.string_test")
	require.NoError(t, err)
	require.NoError(t, c.Set(idx, b.Type, paramserver.StringValue("remote")))

	got, err := c.Param(idx)
	require.NoError(t, err)
	require.Equal(t, "remote", got.Value.String)

	require.NoError(t, c.Save())

	// A fresh node on the same flash loads what was saved.
	again := newNode(t, medium)
	v, err := again.reg.ReadByName("flow.int_test")
	require.NoError(t, err)
	require.Equal(t, int64(-7), v.Int64())
	v, err = again.reg.ReadByName("flow.int_bool")
	require.NoError(t, err)
	require.False(t, v.Bool())
	v, err = again.reg.ReadByName("flow.string_test")
	require.NoError(t, err)
	require.Equal(t, "remote", v.Text())
}

func TestEndToEnd_EraseIsMemoryOnly(t *testing.T) {
	medium := flashfs.NewMemMedium()
	n := newNode(t, medium)
	c := dial(t, serve(t, n), 1)

	require.NoError(t, c.Set(2, param.Int64, paramserver.IntegerValue(11)))
	require.NoError(t, c.Save())

	programs := func() int {
		n.lock.Lock()
		defer n.lock.Unlock()
		return medium.Programs
	}
	before := programs()
	require.NoError(t, c.Erase())
	require.Equal(t, before, programs())

	b, err := c.Param(2)
	require.NoError(t, err)
	require.Equal(t, paramserver.IntegerValue(6), b.Value)

	again := newNode(t, medium)
	v, _ := again.reg.ReadByName("flow.int_test")
	require.Equal(t, int64(11), v.Int64())
}

func TestEndToEnd_Exceptions(t *testing.T) {
	n := newNode(t, flashfs.NewMemMedium())
	addr := serve(t, n)

	c := dial(t, addr, 1)
	err := c.Set(2, param.Float32, paramserver.RealValue(1))
	var me *modbus.ModbusError
	require.True(t, errors.As(err, &me), "got %v", err)
	require.EqualValues(t, modbus.ExceptionCodeIllegalDataAddress, me.ExceptionCode)

	other := dial(t, addr, 7)
	_, err = other.Count()
	require.True(t, errors.As(err, &me), "got %v", err)
	require.EqualValues(t, modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond, me.ExceptionCode)
}

func TestEndToEnd_LongStringTruncated(t *testing.T) {
	n := newNode(t, flashfs.NewMemMedium())
	c := dial(t, serve(t, n), 1)

	require.NoError(t, c.Set(4, param.String, paramserver.StringValue(strings.Repeat("z", 100))))

	n.lock.Lock()
	v, err := n.reg.ReadByName("flow.string_test")
	n.lock.Unlock()
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("z", param.MaxStringLen), v.Text())
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestParam_IndexRange(t *testing.T) {
	c := &Client{}
	_, err := c.Param(regmap.MaxParams)
	require.Error(t, err)
	require.Error(t, c.Set(-1, param.Int64, paramserver.IntegerValue(0)))
}
