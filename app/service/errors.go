package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrBuyerMismatch       = errors.New("buyer mismatch")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrPlanNotConfigured   = errors.New("no plan configured for price tier")
)
