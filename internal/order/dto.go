package order

// CreateOrderItem is one requested line of an order.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	DrugID   string `json:"drug_id"  example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity int    `json:"quantity" example:"2"`
}

// DeliveryRequest holds the delivery fields shared by both checkout payloads.
// swagger:model DeliveryRequest
type DeliveryRequest struct {
	PhoneNumber      string `json:"phone_number"      example:"0241234567"`
	DeliveryNotes    string `json:"delivery_notes"`
	DeliveryArea     string `json:"delivery_area"     example:"ayeduase"`
	DeliveryAddress  string `json:"delivery_address"  example:"Hostel B, room 12"`
	DeliveryLandmark string `json:"delivery_landmark" example:"Near the main gate"`
}

func (r DeliveryRequest) Meta() Meta {
	return Meta{
		PhoneNumber:   r.PhoneNumber,
		DeliveryNotes: r.DeliveryNotes,
		Area:          r.DeliveryArea,
		Address:       r.DeliveryAddress,
		Landmark:      r.DeliveryLandmark,
	}
}

// CreateOrderRequest payload for ordering an explicit item list.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items"`
	DeliveryRequest
}

// UpdateStatusRequest payload for admin status changes.
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status Status `json:"status" example:"delivering"`
}

// View is the order as returned to clients.
// swagger:model OrderView
type View struct {
	*Order
	StatusLabel       string   `json:"status_label"`
	StatusDescription string   `json:"status_description"`
	NextStatuses      []Status `json:"next_statuses"`
}

func NewView(o *Order) View {
	next := o.Status.Next()
	if next == nil {
		next = []Status{}
	}
	return View{
		Order:             o,
		StatusLabel:       o.Status.Label(),
		StatusDescription: o.Status.Description(),
		NextStatuses:      next,
	}
}

// ListResponse is a page of orders.
// swagger:model OrderListResponse
type ListResponse struct {
	Items  []View `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}
