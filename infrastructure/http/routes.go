package http

import (
	"github.com/go-chi/chi/v5"

	"baletrack/production/batches"
	"baletrack/production/items"
	"baletrack/production/labels"
	"baletrack/production/products"
	"baletrack/production/quads"
	"baletrack/production/stocktake"
)

// RegisterProductRoutes registers the product catalog.
func (s *Server) RegisterProductRoutes(r chi.Router) {
	svc := s.Services.Products
	r.Get("/products", products.ListProductsQueryHandler(svc, s.Logger))
	r.Post("/products/import", products.ImportProductsCommandHandler(svc, s.Logger))
}

// RegisterItemRoutes registers the item lifecycle.
func (s *Server) RegisterItemRoutes(r chi.Router) {
	svc := s.Services.Items
	r.Route("/items", func(r chi.Router) {
		r.Post("/", items.CreateItemCommandHandler(svc, s.Logger))
		r.Get("/", items.ListItemsQueryHandler(svc, s.Logger))
		r.Post("/ship", items.ShipItemsCommandHandler(svc, s.Logger))
		r.Get("/by-barcode/{barcode}", items.GetItemByBarcodeQueryHandler(svc, s.Logger))

		r.Get("/{id}", items.GetItemQueryHandler(svc, s.Logger))
		r.Post("/{id}/grade", items.GradeItemCommandHandler(svc, s.Logger))
		r.Post("/{id}/revert", items.RevertItemCommandHandler(svc, s.Logger))
		r.Post("/{id}/location", items.SetItemLocationCommandHandler(svc, s.Logger))
		r.Get("/{id}/history", items.ItemHistoryQueryHandler(svc, s.Logger))
		r.Get("/{id}/label.pdf", labels.ItemLabelQueryHandler(svc, s.Logger))
	})
}

func (s *Server) RegisterBatchRoutes(r chi.Router) {
	svc := s.Services.Batches
	r.Route("/batches", func(r chi.Router) {
		r.Post("/", batches.CreateBatchCommandHandler(svc, s.Logger))
		r.Get("/", batches.ListBatchesQueryHandler(svc, s.Logger))

		r.Get("/{id}", batches.GetBatchQueryHandler(svc, s.Logger))
		r.Delete("/{id}", batches.DisbandBatchCommandHandler(svc, s.Logger))
		r.Post("/{id}/items", batches.AddBatchItemCommandHandler(svc, s.Logger))
		r.Delete("/{id}/items/{serial}", batches.RemoveBatchItemCommandHandler(svc, s.Logger))
		r.Post("/{id}/close", batches.CloseBatchCommandHandler(svc, s.Logger))
		r.Get("/{id}/label.pdf", labels.BatchLabelQueryHandler(svc, s.Logger))
	})
}

func (s *Server) RegisterQuadRoutes(r chi.Router) {
	svc := s.Services.Quads
	r.Route("/quads", func(r chi.Router) {
		r.Post("/", quads.CreateQuadCommandHandler(svc, s.Logger))
		r.Get("/", quads.ListQuadsQueryHandler(svc, s.Logger))
		r.Get("/available", quads.AvailableItemsQueryHandler(svc, s.Logger))

		r.Get("/{id}", quads.GetQuadQueryHandler(svc, s.Logger))
		r.Delete("/{id}", quads.DisbandQuadCommandHandler(svc, s.Logger))
		r.Post("/{id}/warehouse", quads.SendQuadToWarehouseCommandHandler(svc, s.Logger))
		r.Get("/{id}/label.pdf", labels.QuadLabelQueryHandler(svc, s.Logger))
	})
}

// RegisterInventoryRoutes registers stocktake sessions and scanning.
func (s *Server) RegisterInventoryRoutes(r chi.Router) {
	svc := s.Services.Stocktake
	r.Route("/inventory/sessions", func(r chi.Router) {
		r.Post("/", stocktake.StartSessionCommandHandler(svc, s.Logger))
		r.Get("/", stocktake.ListSessionsQueryHandler(svc, s.Logger))
		r.Get("/active", stocktake.ActiveSessionQueryHandler(svc, s.Logger))

		r.Get("/{id}", stocktake.GetSessionQueryHandler(svc, s.Logger))
		r.Post("/{id}/scans", stocktake.ScanCommandHandler(svc, s.Logger))
		r.Get("/{id}/records", stocktake.ListRecordsQueryHandler(svc, s.Logger))
		r.Post("/{id}/complete", stocktake.CompleteSessionCommandHandler(svc, s.Logger))
		r.Post("/{id}/cancel", stocktake.CancelSessionCommandHandler(svc, s.Logger))
		r.Get("/{id}/summary", stocktake.SummaryQueryHandler(svc, s.Logger))
	})
}
