package models

// Shipping method tags presented to customers.
const (
	ShippingPishtaz = "pishtaz"
	ShippingPost    = "post"
	ShippingCourier = "courier"
	ShippingFree    = "free"
)

type ShippingSettings struct {
	PishtazEnabled bool  `json:"pishtaz_enabled"`
	PostEnabled    bool  `json:"post_enabled"`
	CourierEnabled bool  `json:"courier_enabled"`
	FreeEnabled    bool  `json:"free_enabled"`
	FreeThreshold  int64 `json:"free_threshold"`
}

// DefaultShippingSettings is used for sellers that never configured shipping.
func DefaultShippingSettings() ShippingSettings {
	return ShippingSettings{
		PishtazEnabled: true,
		PostEnabled:    true,
		CourierEnabled: true,
	}
}

// SellerSettings holds the per-seller knobs the conversation core reads.
type SellerSettings struct {
	SellerID        int64            `json:"seller_id"`
	Credential      string           `json:"credential"`
	WelcomeTemplate string           `json:"welcome_template,omitempty"`
	Shipping        ShippingSettings `json:"shipping"`
}

// AIProviderSetting is the stored registration of one AI backend.
type AIProviderSetting struct {
	Provider    string `json:"provider"`
	Active      bool   `json:"active"`
	Token       string `json:"-"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}
