package domain

import "github.com/wyfcoding/shopcart/pkg/apperr"

var (
	ErrCartNotFound    = apperr.New(apperr.KindNotFound, "cart not found")
	ErrItemNotFound    = apperr.New(apperr.KindNotFound, "product is not in the cart")
	ErrInvalidQuantity = apperr.New(apperr.KindInvalidArgument, "quantity must be greater than zero")
)
