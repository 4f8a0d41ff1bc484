package enums

import "fmt"

// ServiceCategory is one of the four marketplace verticals.
type ServiceCategory string

const (
	CategoryFoodDelivery    ServiceCategory = "food_delivery"
	CategoryGroceryDelivery ServiceCategory = "grocery_delivery"
	CategoryPackageCourier  ServiceCategory = "package_courier"
	CategoryFurnitureMoving ServiceCategory = "furniture_moving"
)

var validServiceCategories = []ServiceCategory{
	CategoryFoodDelivery,
	CategoryGroceryDelivery,
	CategoryPackageCourier,
	CategoryFurnitureMoving,
}

// String implements fmt.Stringer.
func (c ServiceCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ServiceCategory.
func (c ServiceCategory) IsValid() bool {
	for _, candidate := range validServiceCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseServiceCategory converts raw input into a ServiceCategory.
func ParseServiceCategory(value string) (ServiceCategory, error) {
	for _, candidate := range validServiceCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service category %q", value)
}
