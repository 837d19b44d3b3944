package stocktake

import "baletrack/models"

// ScanResult is the record a scan produced. Duplicate is set when the barcode or
// item was already recorded in the session and nothing changed.
type ScanResult struct {
	Record    models.InventoryScanRecord `json:"record"`
	Duplicate bool                       `json:"duplicate"`
}

// Summary groups the records of one session. FoundItems includes location mismatches.
type Summary struct {
	Session      models.InventorySession      `json:"session"`
	FoundItems   []models.InventoryScanRecord `json:"foundItems"`
	MissingItems []models.InventoryScanRecord `json:"missingItems"`
	ExtraItems   []models.InventoryScanRecord `json:"extraItems"`
}

type startRequest struct {
	Name string `json:"name"`
}

type scanRequest struct {
	Barcode  string  `json:"barcode"`
	Location *string `json:"location,omitempty"`
}
