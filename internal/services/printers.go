package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
	"github.com/Global-Optima/zeep-print-agent/internal/printqueue"
	"github.com/Global-Optima/zeep-print-agent/internal/utils"
)

const (
	DefaultRawPort     = 9100
	defaultSettleDelay = 500 * time.Millisecond
	dialTimeout        = 5 * time.Second
	// writeTimeout applies when the caller's context carries no deadline.
	writeTimeout = 30 * time.Second
)

// --- Print Facilities ---

// NetworkPrinter sends documents to a raw TCP port (JetDirect, 9100).
type NetworkPrinter struct {
	Name   string
	Addr   string
	Settle time.Duration
	logger *slog.Logger
}

func NewNetworkPrinter(p model.Printer, logger *slog.Logger) *NetworkPrinter {
	if logger == nil {
		logger = slog.Default()
	}
	port := p.Port
	if port == 0 {
		port = DefaultRawPort
	}
	settle := p.SettleDelay
	if settle == 0 {
		settle = defaultSettleDelay
	}
	return &NetworkPrinter{
		Name:   p.Name,
		Addr:   net.JoinHostPort(p.IP, fmt.Sprint(port)),
		Settle: settle,
		logger: logger.With("component", "printer", "printer", p.Name),
	}
}

// Print returns once the bytes are written and the printer had time to take them.
func (n *NetworkPrinter) Print(ctx context.Context, doc model.RenderedLabel) error {
	n.logger.Debug("sending document", "bytes", len(doc.Data), "addr", n.Addr, "filename", doc.Filename)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.Addr)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(writeDeadline(ctx, time.Now())); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(doc.Data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.Settle):
	}
	return nil
}

func writeDeadline(ctx context.Context, now time.Time) time.Time {
	deadline := now.Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CUPSPrinter hands documents to the local spooler with lp.
type CUPSPrinter struct {
	Queue   string
	TempDir string
	Run     CommandRunner
	logger  *slog.Logger
}

func NewCUPSPrinter(p model.Printer, logger *slog.Logger) *CUPSPrinter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CUPSPrinter{
		Queue:  p.CUPSQueue,
		Run:    execRunner,
		logger: logger.With("component", "printer", "queue", p.CUPSQueue),
	}
}

func (c *CUPSPrinter) Print(ctx context.Context, doc model.RenderedLabel) error {
	h, err := printqueue.TempFile(c.TempDir, "label-*"+filepath.Ext(doc.Filename), doc.Data)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Release(); err != nil {
			c.logger.Warn("failed to delete tmp file", "path", h.Path, "error", err)
		}
	}()

	args := []string{}
	if c.Queue != "" {
		args = append(args, "-d", c.Queue)
	}
	if doc.Kind == model.KindPrinterNative {
		args = append(args, "-o", "raw")
	}
	args = append(args, h.Path)

	out, err := c.Run(ctx, "lp", args...)
	if err != nil {
		return fmt.Errorf("lp failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	c.logger.Debug("document spooled", "filename", doc.Filename, "lp", strings.TrimSpace(string(out)))
	return nil
}

// SpoolSaver writes documents into a directory instead of printing them.
type SpoolSaver struct {
	Dir string
}

func (s SpoolSaver) Save(ctx context.Context, filename string, doc model.RenderedLabel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(filename))
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return fmt.Errorf("failed saving document: %w", err)
	}
	return nil
}

// NewFacility picks the print facility for the configured printer mode.
// Save mode has no facility; every job goes to the saver.
func NewFacility(p model.Printer, logger *slog.Logger) (printqueue.Facility, error) {
	switch p.Mode {
	case model.PrinterModeNetwork, "":
		if p.IP == "" {
			return nil, fmt.Errorf("printer %q has no ip", p.Name)
		}
		return NewNetworkPrinter(p, logger), nil
	case model.PrinterModeCUPS:
		return NewCUPSPrinter(p, logger), nil
	case model.PrinterModeSave:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown printer mode %q", p.Mode)
	}
}

// --- Discovery Logic ---

// ScanSubnet probes every host of the /24 around localIP on port and returns
// the addresses that answered, in no particular order.
func ScanSubnet(ctx context.Context, localIP string, port int, probe func(ip string, port int) bool) ([]string, error) {
	parts := strings.Split(localIP, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("not an IPv4 address: %q", localIP)
	}
	subnet := strings.Join(parts[:3], ".")

	ipChan := make(chan string, 256)
	foundChan := make(chan string, 256)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range ipChan {
				if ctx.Err() == nil && probe(ip, port) {
					foundChan <- ip
				}
			}
		}()
	}

	go func() {
		defer close(ipChan)
		for i := 1; i <= 254; i++ {
			select {
			case ipChan <- fmt.Sprintf("%s.%d", subnet, i):
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(foundChan)
	}()

	var found []string
	for ip := range foundChan {
		found = append(found, ip)
	}
	return found, ctx.Err()
}

// DiscoverPrinters scans the local subnet for raw printers and asks on out
// which ones to keep.
func DiscoverPrinters(ctx context.Context, in io.Reader, out io.Writer) ([]model.Printer, error) {
	localIP, err := utils.DetectLocalIP()
	if err != nil {
		return nil, fmt.Errorf("error detecting IP: %w", err)
	}
	fmt.Fprintf(out, "Scanning subnet around %s on port %d\n", localIP, DefaultRawPort)

	found, err := ScanSubnet(ctx, localIP, DefaultRawPort, utils.Probe)
	if err != nil {
		return nil, err
	}
	return choosePrinters(found, bufio.NewReader(in), out), nil
}

func choosePrinters(found []string, reader *bufio.Reader, out io.Writer) []model.Printer {
	var printers []model.Printer
	for _, ip := range found {
		fmt.Fprintf(out, "Found printer at %s. Add this printer? (y/n): ", ip)
		ans, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(ans)) != "y" {
			continue
		}
		p := model.Printer{
			Mode: model.PrinterModeNetwork,
			IP:   ip,
			Port: DefaultRawPort,
		}
		fmt.Fprint(out, "  Name (e.g., Bar): ")
		p.Name, _ = reader.ReadString('\n')
		p.Name = strings.TrimSpace(p.Name)

		fmt.Fprint(out, "  Format (pdf/zpl, default pdf): ")
		p.Format, _ = reader.ReadString('\n')
		p.Format = strings.ToLower(strings.TrimSpace(p.Format))
		if p.Format == "" {
			p.Format = "pdf"
		}
		printers = append(printers, p)
	}
	return printers
}
