package domain

import "time"

// Product is a farm product as the catalog backend reports it
type Product struct {
	SKU              string   `json:"sku"`
	Name             string   `json:"name"`
	ShortDescription string   `json:"short_description"`
	LongDescription  string   `json:"long_description"`
	ImagePath        string   `json:"image_path"`
	IsConfirmed      bool     `json:"is_confirmed"`
	Metadata         Metadata `json:"metadata"`
}

// Metadata carries the source-sheet columns the backend forwards untouched
type Metadata struct {
	Allergens   string `json:"allergens,omitempty"`
	Ingredients string `json:"ingredients,omitempty"`
	Weight      string `json:"weight,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Description returns the description stored for a description field
func (p *Product) Description(field FieldType) string {
	switch field {
	case FieldShort:
		return p.ShortDescription
	case FieldLong:
		return p.LongDescription
	case FieldImages:
		return p.ImagePath
	}
	return ""
}

// HasContent reports whether the field already holds generated or uploaded content
func (p *Product) HasContent(field FieldType) bool {
	return p.Description(field) != ""
}

// Farm is one entry of the farm selector
type Farm struct {
	ID          uint       `json:"id"`
	FarmID      string     `json:"farm_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
}

// Descriptions is the pair produced by one generation run
type Descriptions struct {
	Short string `json:"short_description"`
	Long  string `json:"long_description"`
}

// ExportFormat selects the export file type
type ExportFormat string

const (
	ExportCSV   ExportFormat = "csv"
	ExportExcel ExportFormat = "excel"
)

// Extension returns the file extension used for downloads
func (f ExportFormat) Extension() string {
	if f == ExportExcel {
		return "xlsx"
	}
	return string(f)
}

// ContentType returns the MIME type of the export payload
func (f ExportFormat) ContentType() string {
	if f == ExportExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ParseExportFormat defaults to CSV and rejects anything but csv/excel
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportExcel:
		return ExportExcel, nil
	}
	return "", Validation("unsupported export format: " + s)
}

// ImageFile is an operator-selected image as received from the browser
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Confirmation is what gets saved when the operator confirms a row
type Confirmation struct {
	FarmID           string `json:"farm_id"`
	SKU              string `json:"sku"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description"`
	ImagePath        string `json:"image_path"`
}

// Download is an export file ready to be handed to the browser
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportFilename derives the download name from farm id and format
func ExportFilename(farmID string, format ExportFormat) string {
	return "farm_" + farmID + "_export." + format.Extension()
}
