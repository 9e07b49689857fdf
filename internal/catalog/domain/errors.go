package domain

import "github.com/wyfcoding/shopcart/pkg/apperr"

var (
	ErrProductNotFound   = apperr.New(apperr.KindNotFound, "product not found")
	ErrProductInactive   = apperr.New(apperr.KindProductInactive, "product is inactive")
	ErrProductOutOfStock = apperr.New(apperr.KindProductOutOfStock, "product is out of stock")
	ErrInsufficientStock = apperr.New(apperr.KindInsufficientStock, "insufficient stock")
	ErrInvalidStockDelta = apperr.New(apperr.KindInvalidArgument, "stock delta must be positive")
	ErrProductReferenced = apperr.New(apperr.KindInvalidArgument, "product is referenced by a cart")
)
