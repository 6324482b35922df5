// Package export 部门与领导解析结果导出为 Excel
package export

import (
	"fmt"
	"io"

	"orgcache/internal/models"

	"github.com/xuri/excelize/v2"
)

// SheetName 导出工作表名称
const SheetName = "departments"

// Source 导出数据来源（orgcache.Cache 满足该接口）
type Source interface {
	// Departments 按 Seq、ID 排序
	Departments() []models.Department
	Managers(deptID int) map[int]models.Manager
}

var baseHeader = []string{"Dept ID", "Parent ID", "Name", "Description", "Leaders"}

var baseWidths = []float64{10, 10, 24, 40, 40}

// Header 导出表头：基础列 + 每个层级一列
func Header(tiers []models.ManagerTier) []string {
	h := make([]string, 0, len(baseHeader)+len(tiers))
	h = append(h, baseHeader...)
	for _, t := range tiers {
		h = append(h, t.Name)
	}
	return h
}

// WriteDepartments 写出 xlsx
func WriteDepartments(w io.Writer, src Source, tiers []models.ManagerTier) error {
	f, err := BuildWorkbook(src, tiers)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// BuildWorkbook 生成工作簿，调用方负责 Close
func BuildWorkbook(src Source, tiers []models.ManagerTier) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := Header(tiers)
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i := range header {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		width := 20.0
		if i < len(baseWidths) {
			width = baseWidths[i]
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, d := range src.Departments() {
		row := departmentRow(d, src.Managers(d.ID), tiers)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write department %d: %w", d.ID, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}
	return f, nil
}

// departmentRow 层级列格式 "领导名(提供该领导的部门)"
func departmentRow(d models.Department, managers map[int]models.Manager, tiers []models.ManagerTier) []any {
	row := make([]any, 0, len(baseHeader)+len(tiers))
	parent := any("")
	if d.ParentID != 0 {
		parent = d.ParentID
	}
	row = append(row, d.ID, parent, d.Name, d.Desc, d.LeaderDesc)
	for _, t := range tiers {
		m, ok := managers[t.Code]
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, fmt.Sprintf("%s(%s)", m.UserName, m.Name))
	}
	return row
}
