package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
)

// 表の最大行数。超えた分は省略する。
const maxSpotRows = 200

// RenderPDF はレポートをA4縦のPDFとして書き出す。
func RenderPDF(w io.Writer, r *Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	// コアフォントはcp1252のため、UTF-8の文字列は変換して出力する
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// 1. 見出し
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "ParkSpot Revenue Report")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	if r.OwnerName != "" {
		pdf.Cell(0, 6, tr("Owner: "+r.OwnerName))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, "Generated: "+r.GeneratedAt.Format(time.RFC3339))
	pdf.Ln(10)

	// 2. 合計
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(248, 248, 248)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 11)

	sumW := []float64{62, 62, 62}
	pdf.CellFormat(sumW[0], 10, "Revenue", "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[1], 10, "Bookings", "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[2], 10, "Active spots", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(sumW[0], 10, FormatMoney(r.TotalRevenue), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[1], 10, strconv.Itoa(r.TotalBookings), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[2], 10, fmt.Sprintf("%d / %d", r.ActiveSpots, r.TotalSpots), "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	// 3. ステータス別件数
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(245, 245, 245)
	statusW := 186.0 / float64(max(len(r.ByStatus), 1))
	for i, sc := range r.ByStatus {
		ln := 0
		if i == len(r.ByStatus)-1 {
			ln = 1
		}
		pdf.CellFormat(statusW, 8, strings.ToUpper(string(sc.Status)), "1", ln, "C", true, 0, "")
	}
	pdf.SetFont("Helvetica", "", 10)
	for i, sc := range r.ByStatus {
		ln := 0
		if i == len(r.ByStatus)-1 {
			ln = 1
		}
		pdf.CellFormat(statusW, 8, strconv.Itoa(sc.Count), "1", ln, "C", false, 0, "")
	}
	pdf.Ln(6)

	// 4. 駐車場別売上
	colW := []float64{116, 30, 40}
	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(245, 245, 245)
		pdf.CellFormat(colW[0], 8, "SPOT", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colW[1], 8, "BOOKINGS", "1", 0, "C", true, 0, "")
		pdf.CellFormat(colW[2], 8, "REVENUE", "1", 1, "R", true, 0, "")
		pdf.SetFont("Helvetica", "", 9)
	}
	header()

	for i, s := range r.BySpot {
		if i >= maxSpotRows {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 8, "truncated (too many rows)", "1", 1, "C", false, 0, "")
			break
		}
		if pdf.GetY() > 270 {
			pdf.AddPage()
			header()
		}
		pdf.CellFormat(colW[0], 8, tr(trimTo(s.Name, 70)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[1], 8, strconv.Itoa(s.Bookings), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colW[2], 8, FormatMoney(s.Revenue), "1", 1, "R", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render report pdf: %w", err)
	}
	return nil
}

// FormatMoney は金額を"$1,234.50"形式に整形する。
func FormatMoney(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + "." + frac
}

func trimTo(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
