package files

import (
	"strconv"
	"strings"
	"sync"

	"book_spider/internal/errs"
	"book_spider/internal/models"

	"github.com/xuri/excelize/v2"
)

var Headers = []string{
	"ISBN", "Название", "Название языка", "Серия",
	"Название издательства или производителя", "Авторы",
	"Категория товара", "Возрастная категория", "Переплёт",
	"Страна производитель", "Год издания", "Вид товара",
	"Количество страниц", "Размеры", "Длина", "Ширина",
	"Высота", "Класс", "Вес", "Цвет", "Тип бумаги", "Описание", "Цена", "ID",
}

const sheet = "Sheet1"

// Workbook appends book rows to one .xlsx file.
type Workbook struct {
	path string
	mu   sync.Mutex
}

func NewWorkbook(path string) *Workbook {
	return &Workbook{path: path}
}

func (w *Workbook) Path() string { return w.path }

func (w *Workbook) Create() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	_ = f.SetColWidth(sheet, "A", "X", 18)
	_ = f.SetColWidth(sheet, "V", "V", 20)

	return errs.LocalIO(w.path, f.SaveAs(w.path))
}

// Append writes records below the existing rows.
func (w *Workbook) Append(records []*models.BookRecord) error {
	if len(records) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return errs.LocalIO(w.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	next := len(rows) + 1
	for _, rec := range records {
		cell, _ := excelize.CoordinatesToCellName(1, next)
		row := Row(rec)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		next++
	}
	return errs.LocalIO(w.path, f.Save())
}

// Row lays a record out in header order. Numeric columns are written as
// numbers when they parse.
func Row(b *models.BookRecord) []any {
	return []any{
		asInt(b.ISBN), b.Name, b.Language, b.Series,
		b.Publisher, b.Authors, b.Category, asInt(b.AgeCategory), b.Cover,
		b.Country, asInt(b.Year), b.Type,
		asInt(b.PageCount), b.Dimensions, b.Length, b.Width,
		b.Height, asInt(b.Grade), asInt(b.Weight), b.Color, b.PaperType, b.Description,
		asFloat(b.Price), asInt(b.ExternalID),
	}
}

func asInt(s string) any {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n
	}
	return s
}

func asFloat(s string) any {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return s
}
