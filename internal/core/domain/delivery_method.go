package domain

// DeliveryMethodKind discriminates the delivery method variants.
type DeliveryMethodKind string

const (
	MethodBulk DeliveryMethodKind = "bulk"
	MethodTank DeliveryMethodKind = "tank"
	MethodBox  DeliveryMethodKind = "box"
)

// DeliveryMethod is a tagged variant describing how goods are delivered at
// a stop. Only the fields for the active kind are meaningful.
type DeliveryMethod struct {
	Kind DeliveryMethodKind `json:"kind"`

	// bulk
	WeightKg float64 `json:"weight_kg,omitempty"`

	// tank
	VolumeL float64 `json:"volume_l,omitempty"`
	Product string  `json:"product,omitempty"`

	// box
	BoxCount     int  `json:"box_count,omitempty"`
	Refrigerated bool `json:"refrigerated,omitempty"`
}

// Validate rejects unknown kinds and kind-specific nonsense values.
func (m DeliveryMethod) Validate() error {
	switch m.Kind {
	case MethodBulk:
		if m.WeightKg < 0 {
			return E(CodeInvalidMethod, "bulk weight must be non-negative")
		}
		return nil
	case MethodTank:
		if m.VolumeL < 0 {
			return E(CodeInvalidMethod, "tank volume must be non-negative")
		}
		return nil
	case MethodBox:
		if m.BoxCount < 0 {
			return E(CodeInvalidMethod, "box count must be non-negative")
		}
		return nil
	}
	return E(CodeInvalidMethod, "unknown delivery method %q", m.Kind)
}

// Unit returns the measurement unit of the quantity_to_deliver field for
// this method.
func (m DeliveryMethod) Unit() string {
	switch m.Kind {
	case MethodBulk:
		return "kg"
	case MethodTank:
		return "l"
	case MethodBox:
		return "boxes"
	}
	return ""
}
