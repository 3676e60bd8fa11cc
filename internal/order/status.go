package order

type Status string

const (
	StatusPlaced     Status = "placed"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPlaced:     {StatusDelivering, StatusCancelled},
	StatusDelivering: {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

func (s Status) Next() []Status { return transitions[s] }

type label struct {
	Label       string
	Description string
}

var labels = map[Status]label{
	StatusPlaced:     {"Placed", "Order received and awaiting dispatch"},
	StatusDelivering: {"Out for delivery", "Order is on its way"},
	StatusDelivered:  {"Delivered", "Order delivered to the customer"},
	StatusCancelled:  {"Cancelled", "Order was cancelled"},
}

func (s Status) Label() string       { return labels[s].Label }
func (s Status) Description() string { return labels[s].Description }
