package batches

import (
	"github.com/shopspring/decimal"

	"baletrack/models"
)

// View is a batch together with its items in pallet order.
type View struct {
	models.Batch
	Items       []models.ProductionItem `json:"items"`
	ItemCount   int                     `json:"itemCount"`
	TotalWeight decimal.Decimal         `json:"totalWeight"`
}

func newView(b models.Batch, members []models.ProductionItem) View {
	total := decimal.Zero
	for _, it := range members {
		total = total.Add(it.Weight)
	}
	if members == nil {
		members = []models.ProductionItem{}
	}
	return View{Batch: b, Items: members, ItemCount: len(members), TotalWeight: total}
}

// DisbandResult lists the items returned to Graded.
type DisbandResult struct {
	BatchID string                  `json:"batchId"`
	Freed   []models.ProductionItem `json:"freed"`
}

type createRequest struct {
	Sort string `json:"sort"`
}

// addItemRequest identifies the item by id or by scanned barcode.
type addItemRequest struct {
	ItemID  string `json:"itemId"`
	Barcode string `json:"barcode"`
}
