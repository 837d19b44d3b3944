package models

import (
	"fmt"
	"strings"
)

// ItemStatus is the lifecycle state of a production item.
type ItemStatus string

const (
	ItemCreated    ItemStatus = "created"
	ItemGraded     ItemStatus = "graded"
	ItemPalletized ItemStatus = "palletized"
	ItemPacked     ItemStatus = "packed"
	ItemShipped    ItemStatus = "shipped"
	ItemWarehouse  ItemStatus = "warehouse"
)

var itemStatuses = []ItemStatus{ItemCreated, ItemGraded, ItemPalletized, ItemPacked, ItemShipped, ItemWarehouse}

// ParseItemStatus accepts any letter case.
func ParseItemStatus(v string) (ItemStatus, error) {
	s := ItemStatus(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range itemStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown item status %q", v)
}

// InStock is the population a stocktake expects to find on the floor.
var InStock = []ItemStatus{ItemGraded, ItemPalletized}

// BatchStatus is the editing state of a batch.
type BatchStatus string

const (
	BatchOpen   BatchStatus = "open"
	BatchClosed BatchStatus = "closed"
)

func ParseBatchStatus(v string) (BatchStatus, error) {
	switch BatchStatus(strings.ToLower(strings.TrimSpace(v))) {
	case BatchOpen:
		return BatchOpen, nil
	case BatchClosed:
		return BatchClosed, nil
	}
	return "", fmt.Errorf("unknown batch status %q", v)
}

// QuadStatus is the placement state of a quad.
type QuadStatus string

const (
	QuadCreated   QuadStatus = "created"
	QuadWarehouse QuadStatus = "warehouse"
)

func ParseQuadStatus(v string) (QuadStatus, error) {
	switch QuadStatus(strings.ToLower(strings.TrimSpace(v))) {
	case QuadCreated:
		return QuadCreated, nil
	case QuadWarehouse:
		return QuadWarehouse, nil
	}
	return "", fmt.Errorf("unknown quad status %q", v)
}

// SessionStatus is the state of an inventory session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

func ParseSessionStatus(v string) (SessionStatus, error) {
	switch SessionStatus(strings.ToLower(strings.TrimSpace(v))) {
	case SessionActive:
		return SessionActive, nil
	case SessionCompleted:
		return SessionCompleted, nil
	case SessionCancelled:
		return SessionCancelled, nil
	}
	return "", fmt.Errorf("unknown session status %q", v)
}

// ScanStatus classifies one scan record.
type ScanStatus string

const (
	ScanFound    ScanStatus = "found"
	ScanMissing  ScanStatus = "missing"
	ScanExtra    ScanStatus = "extra"
	ScanMismatch ScanStatus = "mismatch"
)
