package models

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pendiente"
	StatusPreparing Status = "preparando"
	StatusReady     Status = "listo"
	StatusDelivered Status = "entregado"
	StatusCancelled Status = "cancelado"
)

// statusCompleted is the value older clients send for a finished order.
const statusCompleted = "completado"

var statusFlow = []Status{StatusPending, StatusPreparing, StatusReady, StatusDelivered}

func Statuses() []Status {
	return append(append([]Status(nil), statusFlow...), StatusCancelled)
}

// ParseStatus accepts any known status, case-insensitively, and maps the
// legacy "completado" to StatusDelivered.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == statusCompleted {
		return StatusDelivered, nil
	}
	for _, st := range Statuses() {
		if string(st) == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("estado desconocido %q", s)
}

// Valid reports whether s is a canonical status value.
func (s Status) Valid() bool {
	for _, st := range Statuses() {
		if st == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Next returns the following status in the fulfilment flow. Terminal
// statuses return themselves.
func (s Status) Next() Status {
	for i, st := range statusFlow {
		if st == s && i < len(statusFlow)-1 {
			return statusFlow[i+1]
		}
	}
	return s
}

func (s Status) rank() int {
	for i, st := range statusFlow {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether an order may move from s to to. Orders only
// move forward through the flow, may be cancelled until they are delivered,
// and never leave a terminal status. Staying put is always allowed.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	if s.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return to.rank() > s.rank()
}
