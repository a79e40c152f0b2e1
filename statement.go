package flatbank

import (
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

var (
	stmtColWidths = []float64{45, 25, 45, 65}
	stmtHeaders   = []string{"Account number", "Status", "Balance", "Opened (UTC)"}
)

// writeStatement renders a one-table PDF of accts for username.
func writeStatement(w io.Writer, username string, accts []Account, at time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(at)
	pdf.SetTitle("Account statement", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Account statement", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Holder: "+username, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Generated: "+at.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range stmtHeaders {
		pdf.CellFormat(stmtColWidths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 11)
	for _, acct := range accts {
		status := "closed"
		if acct.IsActive {
			status = "active"
		}
		pdf.CellFormat(stmtColWidths[0], 7, acct.AcctNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(stmtColWidths[1], 7, status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(stmtColWidths[2], 7, acct.Balance.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(stmtColWidths[3], 7, acct.CreatedAt.UTC().Format(time.RFC3339), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
