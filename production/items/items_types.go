package items

import (
	"github.com/shopspring/decimal"

	"baletrack/models"
)

// DateLayout is the storage format of production dates.
const DateLayout = "2006-01-02"

// CreateInput describes a new bale. SerialNumber and Date are optional.
type CreateInput struct {
	ProductName  string          `json:"productName"`
	SerialNumber *int64          `json:"serialNumber,omitempty"`
	Date         string          `json:"date,omitempty"`
	Weight       decimal.Decimal `json:"weight"`
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	Status      models.ItemStatus
	ProductName string
	Sort        string
	BatchID     string
	QuadID      string
}

type gradeRequest struct {
	Sort string `json:"sort"`
}

type shipRequest struct {
	ItemIDs []string `json:"itemIds"`
}

type locationRequest struct {
	Location string `json:"location"`
}
