package api

import (
	"fmt"
	"strings"

	"pickupmtaani/internal/model"
)

func validateOrder(id string, in *orderIn) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("missing order id")
	}
	if in.Status != "" && !in.Status.Valid() {
		return fmt.Errorf("invalid status: %s", in.Status)
	}
	if in.ShippingMethod == model.ShippingMethodID && strings.TrimSpace(in.Destination.City) == "" {
		return fmt.Errorf("destination.city is required for %s orders", model.ShippingMethodID)
	}
	for i, it := range in.Items {
		if it.Quantity < 0 {
			return fmt.Errorf("items[%d].quantity must be >= 0", i)
		}
		if it.Price < 0 {
			return fmt.Errorf("items[%d].price must be >= 0", i)
		}
	}
	return nil
}
