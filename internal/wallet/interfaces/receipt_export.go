package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	walletapp "wastefee-cloud/internal/wallet/application"
	wallet "wastefee-cloud/internal/wallet/domain"
)

// BuildReceiptPDF renders a one-page payment receipt. Core PDF fonts carry
// no Greek glyphs, so the municipality is printed by its English name.
func BuildReceiptPDF(receipt *walletapp.Receipt, currency string) ([]byte, error) {
	if receipt == nil || receipt.Payment == nil || receipt.Wallet == nil {
		return nil, fmt.Errorf("receipt export: incomplete receipt")
	}
	payment := receipt.Payment
	w := receipt.Wallet
	progress := w.Progress()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, "Waste Fee Payment Receipt")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Receipt: %s", payment.ReceiptNumber))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", payment.PaymentDate.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Municipality: %s", receipt.Municipality.NameEN))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Wallet: %s", w.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", payment.Status))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Item", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 6, fmt.Sprintf("Amount (%s)", currency), "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Payment", payment.Amount.StringFixed(2)},
		{fmt.Sprintf("Annual fee %d", w.Year), w.AnnualTarget.StringFixed(2)},
		{"Total paid", w.TotalPaid.StringFixed(2)},
		{"Remaining", progress.Remaining.StringFixed(2)},
	}
	for _, row := range rows {
		pdf.CellFormat(70, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, row[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Progress: %.1f%%", progress.Percent))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTransactionsXLSX renders the wallet summary and its journal.
func BuildTransactionsXLSX(w *wallet.Wallet, txs []*wallet.Transaction, currency string) ([]byte, error) {
	if w == nil {
		return nil, fmt.Errorf("transactions export: nil wallet")
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	journalSheet := "transactions"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(journalSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Waste Wallet")
	_ = f.SetCellValue(summarySheet, "A3", "Wallet")
	_ = f.SetCellValue(summarySheet, "B3", w.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Municipality")
	_ = f.SetCellValue(summarySheet, "B4", string(w.MunicipalityID))
	_ = f.SetCellValue(summarySheet, "A5", "Year")
	_ = f.SetCellValue(summarySheet, "B5", w.Year)
	_ = f.SetCellValue(summarySheet, "A6", "Balance")
	_ = f.SetCellValue(summarySheet, "B6", w.Balance.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A7", "Total Earned")
	_ = f.SetCellValue(summarySheet, "B7", w.TotalEarned.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A8", "Total Paid")
	_ = f.SetCellValue(summarySheet, "B8", w.TotalPaid.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A9", "Annual Target")
	_ = f.SetCellValue(summarySheet, "B9", w.AnnualTarget.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A10", "kWh Saved")
	_ = f.SetCellValue(summarySheet, "B10", w.KWhSaved)
	_ = f.SetCellValue(summarySheet, "A11", "Currency")
	_ = f.SetCellValue(summarySheet, "B11", currency)

	headers := []string{"Date", "Type", "Amount", "Description", "kWh Saved", "Double Points", "Session", "Payment"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(journalSheet, cell, header)
	}
	for i, tx := range txs {
		row := i + 2
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("A%d", row), tx.CreatedAt.Format(time.RFC3339))
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("B%d", row), string(tx.Kind))
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("C%d", row), tx.Amount.InexactFloat64())
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("D%d", row), tx.Description)
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("E%d", row), tx.KWhSaved)
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("F%d", row), tx.DoublePoints)
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("G%d", row), tx.SessionID)
		_ = f.SetCellValue(journalSheet, fmt.Sprintf("H%d", row), tx.PaymentID)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
