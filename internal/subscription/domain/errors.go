package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInstanceNotFound     = errors.New("subscription_instance_not_found")
	ErrInvalidSKU           = errors.New("invalid_sku")
)
