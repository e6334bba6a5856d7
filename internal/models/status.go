package models

type Status string

const (
	// StatusUnpaid marks a self-service order awaiting cashier validation.
	StatusUnpaid Status = "Unpaid"
	// StatusPending marks a validated or direct cashier sale awaiting fulfillment.
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusUnpaid:    {StatusPending: true},
	StatusPending:   {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusUnpaid, StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
