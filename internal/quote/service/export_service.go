package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExportService 导出RFQ成本表
type ExportService struct {
	rfqs *RFQService
}

func NewExportService(rfqs *RFQService) *ExportService {
	return &ExportService{rfqs: rfqs}
}

var costSheetHeaders = []string{
	"SKU", "图号", "组件重量", "组件成本", "小计", "管理费%", "管理费",
	"运费/kg", "保险/kg", "运费", "保险", "CIF", "利润%", "总成本", "客户币种成本",
}

// ExportRFQ 每个SKU一行，底部为RFQ汇总行
func (s *ExportService) ExportRFQ(ctx context.Context, rfqID string) (*excelize.File, string, error) {
	rfq, err := s.rfqs.GetRFQ(ctx, rfqID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Costing"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range costSheetHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx, sku := range rfq.SKUs {
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), sku.Name)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), sku.DrawingNo)
		l := sku.Ledger
		if l == nil {
			continue
		}
		figures := []decimal.NullDecimal{
			l.AssemblyWeight, l.AssemblyCost, l.SubtotalCost, l.OverheadPercentage, l.OverheadCost,
			l.FreightCostPerKg, l.InsuranceCostPerKg, l.FreightCost, l.InsuranceCost, l.CIFCost,
			l.MarginPercentage, l.TotalCost, l.ClientCurrencyCost,
		}
		for i, v := range figures {
			setDecimal(f, sheet, i+3, row, v)
		}
	}

	// 汇总行
	summaryRow := len(rfq.SKUs) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	setDecimal(f, sheet, 7, summaryRow, rfq.FactoryOverheadCost)
	setDecimal(f, sheet, 10, summaryRow, rfq.FreightCost)
	setDecimal(f, sheet, 11, summaryRow, rfq.InsuranceCost)
	setDecimal(f, sheet, 12, summaryRow, rfq.CIFCost)
	setDecimal(f, sheet, 14, summaryRow, rfq.TotalCostToCustomer)
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("O%d", summaryRow), summaryStyle)

	infoRow := summaryRow + 1
	f.SetCellValue(sheet, fmt.Sprintf("A%d", infoRow), "FOB")
	setDecimal(f, sheet, 2, infoRow, rfq.FOBCost)
	f.SetCellValue(sheet, fmt.Sprintf("C%d", infoRow), "利润")
	setDecimal(f, sheet, 4, infoRow, rfq.MarginCost)

	f.SetColWidth(sheet, "A", "A", 24)
	f.SetColWidth(sheet, "B", "O", 14)

	filename := fmt.Sprintf("%s_v%d_costing.xlsx", rfq.Name, rfq.Version)
	return f, filename, nil
}

func setDecimal(f *excelize.File, sheet string, col, row int, v decimal.NullDecimal) {
	if !v.Valid {
		return
	}
	name, _ := excelize.ColumnNumberToName(col)
	f.SetCellValue(sheet, fmt.Sprintf("%s%d", name, row), v.Decimal.InexactFloat64())
}
