package domain

// Address is a shipping destination.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Order is a record from the backing order source.
type Order struct {
	OrderID           string  `json:"order_id"`
	CustomerEmail     string  `json:"customer_email"`
	Product           string  `json:"product"`
	Quantity          int     `json:"quantity"`
	Price             float64 `json:"price"`
	Status            string  `json:"status"`
	OrderDate         string  `json:"order_date"`
	EstimatedDelivery string  `json:"estimated_delivery,omitempty"`
	TrackingNumber    string  `json:"tracking_number,omitempty"`
	Carrier           string  `json:"carrier,omitempty"`
	ShippingAddress   Address `json:"shipping_address"`
}

// Order status values used by the backing source.
const (
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusReturned   = "returned"
)
