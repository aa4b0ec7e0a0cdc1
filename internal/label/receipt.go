package label

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

//go:embed templates/receipt.html
var receiptTemplate string

var templateFuncs = template.FuncMap{
	"formatMoney": func(amount float64) string {
		return decimal.NewFromFloat(amount).StringFixed(2)
	},
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("02/01/2006 15:04")
	},
}

// Rasterizer turns an HTML document into a PNG screenshot.
type Rasterizer interface {
	Rasterize(ctx context.Context, html string) ([]byte, error)
}

// ChromeRasterizer renders HTML with a headless Chrome started per call.
type ChromeRasterizer struct {
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string
	// Settle is how long the page gets to lay out before the screenshot.
	Settle time.Duration
}

func (c ChromeRasterizer) Rasterize(ctx context.Context, html string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	cdpCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	settle := c.Settle
	if settle <= 0 {
		settle = 300 * time.Millisecond
	}

	var pngBytes []byte
	err := chromedp.Run(cdpCtx,
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		chromedp.Sleep(settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, err := page.CaptureScreenshot().
				WithCaptureBeyondViewport(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pngBytes = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed generating image: %w", err)
	}
	return pngBytes, nil
}

func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ReceiptRenderer prints an order ticket for ESC/POS thermal printers.
type ReceiptRenderer struct {
	raster Rasterizer
	width  int
	tmpl   *template.Template
}

func NewReceiptRenderer(raster Rasterizer, widthPx int) (*ReceiptRenderer, error) {
	tmpl, err := template.New("receipt").Funcs(templateFuncs).Parse(receiptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if widthPx <= 0 {
		widthPx = DefaultReceiptWidth
	}
	return &ReceiptRenderer{raster: raster, width: widthPx, tmpl: tmpl}, nil
}

// HTML executes the receipt template for an order.
func (r *ReceiptRenderer) HTML(order model.Order) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Order   model.Order
		WidthPx int
	}{Order: order, WidthPx: r.width}
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func (r *ReceiptRenderer) Render(ctx context.Context, order model.Order) (model.RenderedLabel, error) {
	html, err := r.HTML(order)
	if err != nil {
		return model.RenderedLabel{}, err
	}
	pngBytes, err := r.raster.Rasterize(ctx, html)
	if err != nil {
		return model.RenderedLabel{}, err
	}
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return model.RenderedLabel{}, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return model.RenderedLabel{
		Kind:     model.KindPrinterNative,
		MIME:     model.MIMEESCPOS,
		Filename: fmt.Sprintf("order-%d.escpos", order.ID),
		Data:     EncodeESCPOS(img, r.width),
	}, nil
}
