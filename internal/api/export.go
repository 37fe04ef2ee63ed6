package api

import (
	"log/slog"
	"net/http"

	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{
	"Timestamp",
	"Income",
	"Age",
	"Requested Amount",
	"Collateral Value",
	"Collateral Liquidity",
	"Approval Probability",
	"Approved",
	"Message",
}

// ExportHistory handles GET /history/export, streaming the full decision
// log as an xlsx workbook.
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ReadAll(r.Context())
	if err != nil {
		slog.Error("failed to read history for export", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error:  "failed to read history",
			Detail: err.Error(),
		})
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "History"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for i, header := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for rowIdx, rec := range records {
		values := []any{
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.Income,
			rec.Age,
			rec.RequestedAmount,
			rec.CollateralValue,
			string(rec.CollateralLiquidity),
			nil,
			rec.Approved,
			rec.Message,
		}
		if rec.Probability != nil {
			values[6] = *rec.Probability
		}

		for colIdx, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="history.xlsx"`)

	if err := f.Write(w); err != nil {
		slog.Error("failed to write xlsx export", "error", err)
	}
}
