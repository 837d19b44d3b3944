package labels

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/jung-kurt/gofpdf"

	"baletrack/models"
	"baletrack/production/batches"
	"baletrack/production/quads"
)

const printedLayout = "02.01.2006 15:04"

// ItemLabelPDF renders the A6 bale label carrying the item barcode.
func ItemLabelPDF(item models.ProductionItem, printedAt time.Time) ([]byte, error) {
	if strings.TrimSpace(item.Barcode) == "" {
		return nil, errors.New("item has no barcode")
	}
	barcodePNG, err := renderCode128PNG(item.Barcode, 1200, 300)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A6", "")
	pdf.SetTitle("Bale "+item.Barcode, false)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	margin := 6.0

	productFont := fitFontSizeForWidth(pdf, "Helvetica", "B", 22, 12, tr(item.ProductName), pageW-2*margin)
	pdf.SetFont("Helvetica", "B", productFont)
	pdf.SetXY(margin, margin)
	pdf.CellFormat(pageW-2*margin, 10, tr(item.ProductName), "", 1, "C", false, 0, "")

	sort := item.SortValue()
	if sort == "" {
		sort = "-"
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetX(margin)
	pdf.CellFormat(pageW-2*margin, 6, fmt.Sprintf("Serial: %d   Date: %s   Sort: %s", item.SerialNumber, item.ProductionDate, tr(sort)), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 26)
	pdf.SetX(margin)
	pdf.CellFormat(pageW-2*margin, 12, item.Weight.String()+" kg", "", 1, "C", false, 0, "")

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("item-barcode", opt, bytes.NewReader(barcodePNG))
	imgW := pageW - 2*margin
	y := 48.0
	pdf.ImageOptions("item-barcode", margin, y, imgW, 32, false, opt, 0, "")

	pdf.SetY(y + 34)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 6, item.Barcode, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(0, 4, "Printed "+printedAt.Format(printedLayout), "", 1, "C", false, 0, "")

	return output(pdf)
}

// BatchLabelPDF renders an A4 pallet sheet: container barcode and a content list.
func BatchLabelPDF(view batches.View, printedAt time.Time) ([]byte, error) {
	rows := make([]contentRow, 0, len(view.Items))
	for _, it := range view.Items {
		rows = append(rows, contentRow{Serial: it.SerialNumber, Product: it.ProductName, Date: it.ProductionDate, Weight: it.Weight.String(), Status: string(it.Status)})
	}
	return containerPDF(containerLabel{
		Kind:        "PALLET",
		ID:          view.ID,
		Heading:     "Sort " + view.Sort,
		Status:      string(view.Status),
		ItemCount:   view.ItemCount,
		TotalWeight: view.TotalWeight.String(),
		Rows:        rows,
	}, printedAt)
}

// QuadLabelPDF renders an A4 quad sheet.
func QuadLabelPDF(view quads.View, printedAt time.Time) ([]byte, error) {
	rows := make([]contentRow, 0, len(view.Items))
	for _, it := range view.Items {
		rows = append(rows, contentRow{Serial: it.SerialNumber, Product: it.ProductName, Date: it.ProductionDate, Weight: it.Weight.String(), Status: string(it.Status)})
	}
	heading := view.ProductName + " / Sort " + view.Sort
	if view.LocationID != nil {
		heading += " @ " + *view.LocationID
	}
	return containerPDF(containerLabel{
		Kind:        "QUAD",
		ID:          view.ID,
		Heading:     heading,
		Status:      string(view.Status),
		ItemCount:   len(view.Items),
		TotalWeight: view.TotalWeight.String(),
		Rows:        rows,
	}, printedAt)
}

type contentRow struct {
	Serial  int64
	Product string
	Date    string
	Weight  string
	Status  string
}

type containerLabel struct {
	Kind        string
	ID          string
	Heading     string
	Status      string
	ItemCount   int
	TotalWeight string
	Rows        []contentRow
}

func containerPDF(label containerLabel, printedAt time.Time) ([]byte, error) {
	if strings.TrimSpace(label.ID) == "" {
		return nil, errors.New("container has no id")
	}
	barcodePNG, err := renderCode128PNG(label.ID, 1200, 260)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(label.Kind+" "+label.ID, false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()

	pdf.SetFont("Helvetica", "B", 44)
	pdf.CellFormat(0, 20, label.Kind+" "+label.ID, "", 1, "C", false, 0, "")
	headingFont := fitFontSizeForWidth(pdf, "Helvetica", "B", 28, 14, tr(label.Heading), pageW-30)
	pdf.SetFont("Helvetica", "B", headingFont)
	pdf.CellFormat(0, 14, tr(label.Heading), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 9, fmt.Sprintf("Items: %d   Total weight: %s kg   Status: %s", label.ItemCount, label.TotalWeight, label.Status), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 9, "Printed: "+printedAt.Format(printedLayout), "", 1, "C", false, 0, "")

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	imageName := "container-barcode-" + label.ID
	pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(barcodePNG))
	imgW := 200.0
	imgH := 46.0
	y := pdf.GetY() + 4
	pdf.ImageOptions(imageName, (pageW-imgW)/2, y, imgW, imgH, false, opt, 0, "")
	pdf.SetY(y + imgH + 4)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, label.ID, "", 1, "C", false, 0, "")

	if len(label.Rows) > 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(0, 10, label.Kind+" "+label.ID+" contents", "", 1, "L", false, 0, "")
		widths := []float64{25, 110, 40, 40, 40}
		headers := []string{"#", "Product", "Date", "Weight", "Status"}
		pdf.SetFont("Helvetica", "B", 11)
		for i, h := range headers {
			pdf.CellFormat(widths[i], 8, h, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 11)
		for _, row := range label.Rows {
			cells := []string{fmt.Sprintf("%d", row.Serial), tr(row.Product), row.Date, row.Weight, row.Status}
			for i, c := range cells {
				pdf.CellFormat(widths[i], 7, c, "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func fitFontSizeForWidth(pdf *gofpdf.Fpdf, family, style string, base, min float64, text string, maxWidth float64) float64 {
	if maxWidth <= 0 {
		return min
	}
	size := base
	pdf.SetFont(family, style, size)
	for size > min && pdf.GetStringWidth(text) > maxWidth {
		size -= 0.5
		pdf.SetFont(family, style, size)
	}
	return size
}

func renderCode128PNG(value string, width, height int) ([]byte, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, toNRGBA(scaled)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toNRGBA flattens the barcode image; gofpdf rejects some paletted PNGs.
func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}
