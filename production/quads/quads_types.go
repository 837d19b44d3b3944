package quads

import (
	"github.com/shopspring/decimal"

	"baletrack/models"
)

// Size is the fixed number of items in a quad.
const Size = 4

// View is a quad with its four items.
type View struct {
	models.Quad
	Items       []models.ProductionItem `json:"items"`
	TotalWeight decimal.Decimal         `json:"totalWeight"`
}

func newView(q models.Quad, members []models.ProductionItem) View {
	total := decimal.Zero
	for _, it := range members {
		total = total.Add(it.Weight)
	}
	if members == nil {
		members = []models.ProductionItem{}
	}
	return View{Quad: q, Items: members, TotalWeight: total}
}

type createRequest struct {
	ItemIDs []string `json:"itemIds"`
}

type warehouseRequest struct {
	Location *string `json:"location,omitempty"`
}
