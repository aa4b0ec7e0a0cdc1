package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

func TestNetworkPrinter_WritesDocument(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	addr := ln.Addr().(*net.TCPAddr)
	p := NewNetworkPrinter(model.Printer{Name: "bar", IP: "127.0.0.1", Port: addr.Port, SettleDelay: time.Millisecond}, nil)

	doc := model.RenderedLabel{Kind: model.KindPrinterNative, Data: []byte("^XA^XZ")}
	require.NoError(t, p.Print(context.Background(), doc))

	select {
	case data := <-received:
		assert.Equal(t, []byte("^XA^XZ"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("printer never received the document")
	}
}

func TestNetworkPrinter_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	p := NewNetworkPrinter(model.Printer{IP: "127.0.0.1", Port: port}, nil)
	err = p.Print(context.Background(), model.RenderedLabel{Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection failed")
}

func TestNetworkPrinter_WedgedPrinterHitsWriteDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	}()

	p := NewNetworkPrinter(model.Printer{IP: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// Nobody reads, so the write blocks once the socket buffers are full.
	err = p.Print(ctx, model.RenderedLabel{Data: make([]byte, 64<<20)})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestWriteDeadline(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(writeTimeout), writeDeadline(context.Background(), now))

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(time.Second))
	defer cancel()
	assert.Equal(t, now.Add(time.Second), writeDeadline(ctx, now))

	late, cancelLate := context.WithDeadline(context.Background(), now.Add(time.Hour))
	defer cancelLate()
	assert.Equal(t, now.Add(writeTimeout), writeDeadline(late, now))
}

func TestNetworkPrinter_Defaults(t *testing.T) {
	p := NewNetworkPrinter(model.Printer{IP: "10.0.0.9"}, nil)
	assert.Equal(t, "10.0.0.9:9100", p.Addr)
	assert.Equal(t, defaultSettleDelay, p.Settle)
}

func TestCUPSPrinter_SpoolsTempFileAndReleasesIt(t *testing.T) {
	dir := t.TempDir()
	var gotArgs []string
	var gotPath string

	p := NewCUPSPrinter(model.Printer{CUPSQueue: "labels"}, nil)
	p.TempDir = dir
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "lp", name)
		gotArgs = args
		gotPath = args[len(args)-1]
		data, err := os.ReadFile(gotPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("^XA^XZ"), data)
		return []byte("request id is labels-1"), nil
	}

	doc := model.RenderedLabel{Kind: model.KindPrinterNative, Filename: "qr-1.zpl", Data: []byte("^XA^XZ")}
	require.NoError(t, p.Print(context.Background(), doc))

	assert.Equal(t, []string{"-d", "labels", "-o", "raw"}, gotArgs[:4])
	assert.Equal(t, ".zpl", filepath.Ext(gotPath))
	_, err := os.Stat(gotPath)
	assert.True(t, os.IsNotExist(err), "temp file should be removed")
}

func TestCUPSPrinter_FailureStillReleases(t *testing.T) {
	dir := t.TempDir()
	var gotPath string

	p := NewCUPSPrinter(model.Printer{}, nil)
	p.TempDir = dir
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotPath = args[len(args)-1]
		assert.Equal(t, []string{gotPath}, args, "pdf on the default queue needs no options")
		return []byte("lp: No default destination"), errors.New("exit status 1")
	}

	err := p.Print(context.Background(), model.RenderedLabel{Kind: model.KindPDF, Filename: "qr.pdf", Data: []byte("%PDF")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No default destination")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpoolSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")
	s := SpoolSaver{Dir: dir}

	require.NoError(t, s.Save(context.Background(), "../escape/abc_label.pdf", model.RenderedLabel{Data: []byte("pdf")}))

	data, err := os.ReadFile(filepath.Join(dir, "abc_label.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, "x.pdf", model.RenderedLabel{}), context.Canceled)
}

func TestNewFacility(t *testing.T) {
	f, err := NewFacility(model.Printer{Mode: model.PrinterModeNetwork, IP: "10.0.0.2"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &NetworkPrinter{}, f)

	f, err = NewFacility(model.Printer{Mode: model.PrinterModeCUPS, CUPSQueue: "q"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CUPSPrinter{}, f)

	f, err = NewFacility(model.Printer{Mode: model.PrinterModeSave}, nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = NewFacility(model.Printer{Mode: model.PrinterModeNetwork}, nil)
	assert.Error(t, err)

	_, err = NewFacility(model.Printer{Mode: "usb"}, nil)
	assert.Error(t, err)
}

func TestScanSubnet(t *testing.T) {
	probe := func(ip string, port int) bool {
		assert.Equal(t, 9100, port)
		return ip == "192.168.1.7" || ip == "192.168.1.42"
	}
	found, err := ScanSubnet(context.Background(), "192.168.1.15", 9100, probe)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"192.168.1.7", "192.168.1.42"}, found)

	_, err = ScanSubnet(context.Background(), "fe80::1", 9100, probe)
	assert.Error(t, err)
}

func TestChoosePrinters(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("y\nBar\nzpl\nn\ny\nKitchen\n\n"))
	var out bytes.Buffer

	printers := choosePrinters([]string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}, in, &out)
	require.Len(t, printers, 2)
	assert.Equal(t, model.Printer{Name: "Bar", Mode: model.PrinterModeNetwork, IP: "10.0.0.5", Port: 9100, Format: "zpl"}, printers[0])
	assert.Equal(t, "Kitchen", printers[1].Name)
	assert.Equal(t, "pdf", printers[1].Format)
	assert.Contains(t, out.String(), "Found printer at 10.0.0.6")
}
