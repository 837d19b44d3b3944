package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Product maps a product name to the SKU printed in barcodes.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:pr"`

	SKU       string    `bun:"sku,pk" json:"sku"`
	Name      string    `bun:"name,notnull,unique" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

// ProductionItem is one physical bale.
type ProductionItem struct {
	bun.BaseModel `bun:"table:production_items,alias:pi"`

	ID             string          `bun:"id,pk" json:"id"`
	Barcode        string          `bun:"barcode,notnull,unique" json:"barcode"`
	ProductName    string          `bun:"product_name,notnull" json:"productName"`
	ProductSKU     string          `bun:"product_sku,notnull" json:"productSku"`
	SerialNumber   int64           `bun:"serial_number,notnull" json:"serialNumber"`
	ProductionDate string          `bun:"production_date,notnull" json:"date"`
	Weight         decimal.Decimal `bun:"weight,type:text,notnull" json:"weight"`
	Status         ItemStatus      `bun:"status,notnull" json:"status"`
	Sort           *string         `bun:"sort" json:"sort,omitempty"`
	GradedBy       *string         `bun:"graded_by" json:"gradedBy,omitempty"`
	GradedAt       *time.Time      `bun:"graded_at" json:"gradedAt,omitempty"`
	BatchID        *string         `bun:"batch_id" json:"batchId,omitempty"`
	BatchPosition  *int64          `bun:"batch_position" json:"-"`
	QuadID         *string         `bun:"quad_id" json:"quadId,omitempty"`
	LocationID     *string         `bun:"location_id" json:"locationId,omitempty"`
	ShippedAt      *time.Time      `bun:"shipped_at" json:"shippedAt,omitempty"`
	CreatedBy      string          `bun:"created_by,notnull" json:"createdBy"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
	Version        int64           `bun:"version,notnull,default:1" json:"version"`
}

// SortValue returns the grade or "" when the item is ungraded.
func (i ProductionItem) SortValue() string {
	if i.Sort == nil {
		return ""
	}
	return *i.Sort
}

// Batch is a pallet of graded items sharing one sort.
type Batch struct {
	bun.BaseModel `bun:"table:batches,alias:b"`

	ID        string      `bun:"id,pk" json:"id"`
	Sort      string      `bun:"sort,notnull" json:"sort"`
	Status    BatchStatus `bun:"status,notnull" json:"status"`
	CreatedBy string      `bun:"created_by,notnull" json:"createdBy"`
	CreatedAt time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	ClosedAt  *time.Time  `bun:"closed_at" json:"closedAt,omitempty"`
}

// Quad is a fixed four-item shipping unit of one product and sort.
type Quad struct {
	bun.BaseModel `bun:"table:quads,alias:q"`

	ID           string     `bun:"id,pk" json:"id"`
	ProductName  string     `bun:"product_name,notnull" json:"productName"`
	Sort         string     `bun:"sort,notnull" json:"sort"`
	Status       QuadStatus `bun:"status,notnull" json:"status"`
	LocationID   *string    `bun:"location_id" json:"locationId,omitempty"`
	CreatedBy    string     `bun:"created_by,notnull" json:"createdBy"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	WarehousedAt *time.Time `bun:"warehoused_at" json:"warehousedAt,omitempty"`
}

// InventorySession is one stocktake pass.
type InventorySession struct {
	bun.BaseModel `bun:"table:inventory_sessions,alias:s"`

	ID            string        `bun:"id,pk" json:"id"`
	Name          string        `bun:"name,notnull" json:"name"`
	Status        SessionStatus `bun:"status,notnull" json:"status"`
	TotalExpected int64         `bun:"total_expected,notnull" json:"totalExpected"`
	TotalScanned  int64         `bun:"total_scanned,notnull" json:"totalScanned"`
	TotalMissing  int64         `bun:"total_missing,notnull" json:"totalMissing"`
	TotalExtra    int64         `bun:"total_extra,notnull" json:"totalExtra"`
	TotalMismatch int64         `bun:"total_mismatch,notnull" json:"totalMismatch"`
	StartedBy     string        `bun:"started_by,notnull" json:"startedBy"`
	StartedAt     time.Time     `bun:"started_at,notnull" json:"startedAt"`
	CompletedAt   *time.Time    `bun:"completed_at" json:"completedAt,omitempty"`
	CancelledAt   *time.Time    `bun:"cancelled_at" json:"cancelledAt,omitempty"`
}

// InventoryScanRecord is one classified scan, or one missing item written at completion.
type InventoryScanRecord struct {
	bun.BaseModel `bun:"table:inventory_scan_records,alias:sr"`

	ID               int64               `bun:"id,pk,autoincrement" json:"id"`
	SessionID        string              `bun:"session_id,notnull" json:"sessionId"`
	Barcode          string              `bun:"barcode,notnull" json:"barcode"`
	Status           ScanStatus          `bun:"status,notnull" json:"status"`
	ItemID           *string             `bun:"item_id" json:"itemId,omitempty"`
	SerialNumber     *int64              `bun:"serial_number" json:"serialNumber,omitempty"`
	ProductName      *string             `bun:"product_name" json:"productName,omitempty"`
	Weight           decimal.NullDecimal `bun:"weight,type:text" json:"weight"`
	Sort             *string             `bun:"sort" json:"sort,omitempty"`
	ExpectedLocation *string             `bun:"expected_location" json:"expectedLocation,omitempty"`
	ActualLocation   *string             `bun:"actual_location" json:"actualLocation,omitempty"`
	ScannedBy        string              `bun:"scanned_by,notnull" json:"scannedBy"`
	CreatedAt        time.Time           `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// AuditLog captures immutable change history for every committed transition.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	ActorID    string    `bun:"actor_id,notnull" json:"actorId"`
	Action     string    `bun:"action,notnull" json:"action"`
	EntityType string    `bun:"entity_type,notnull" json:"entityType"`
	EntityID   string    `bun:"entity_id,notnull" json:"entityId"`
	BeforeJSON string    `bun:"before_json" json:"before,omitempty"`
	AfterJSON  string    `bun:"after_json" json:"after,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}
