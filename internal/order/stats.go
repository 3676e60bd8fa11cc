package order

import "github.com/shopspring/decimal"

// add folds one (status, payment_status) group into the stats. Revenue
// counts paid orders only.
func (s *Stats) add(status Status, payment PaymentStatus, n int, amount decimal.Decimal) {
	if s.ByStatus == nil {
		s.ByStatus = map[Status]int{}
	}
	s.Total += n
	s.ByStatus[status] += n
	switch payment {
	case PaymentPaid:
		s.Paid += n
		s.TotalRevenue = s.TotalRevenue.Add(amount)
	case PaymentPending:
		s.PendingPay += n
	}
}

// Tally computes Stats over an in-memory slice of orders.
func Tally(orders []Order) Stats {
	st := Stats{ByStatus: map[Status]int{}, TotalRevenue: decimal.Zero}
	for i := range orders {
		st.add(orders[i].Status, orders[i].PaymentStatus, 1, orders[i].TotalAmount)
	}
	return st
}
