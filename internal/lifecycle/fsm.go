package lifecycle

import (
	"errors"
	"fmt"

	"bookcore/internal/model"
)

// ErrIllegalTransition is returned when an action is not allowed from the
// reservation's current status.
var ErrIllegalTransition = errors.New("illegal status transition")

// Action is a request to move a reservation to another status.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionComplete   Action = "complete"
	ActionPayDeposit Action = "pay_deposit"
	ActionCheckOut   Action = "check_out"
	ActionReturn     Action = "return"
	ActionCancel     Action = "cancel"
)

type transition struct {
	from   model.Status
	action Action
}

// FSM holds the reservation transition tables per kind.
type FSM struct {
	tables  map[model.Kind]map[transition]model.Status
	initial map[model.Kind]model.Status
}

// NewFSM creates the FSM with the appointment and rental flows.
func NewFSM() *FSM {
	return &FSM{
		tables: map[model.Kind]map[transition]model.Status{
			model.KindAppointment: {
				{model.StatusPending, ActionConfirm}:    model.StatusConfirmed,
				{model.StatusPending, ActionCancel}:     model.StatusCancelled,
				{model.StatusConfirmed, ActionComplete}: model.StatusCompleted,
				{model.StatusConfirmed, ActionCancel}:   model.StatusCancelled,
			},
			model.KindRental: {
				{model.StatusPendingDeposit, ActionPayDeposit}: model.StatusDepositPaid,
				{model.StatusPendingDeposit, ActionCancel}:     model.StatusCancelled,
				{model.StatusDepositPaid, ActionCheckOut}:      model.StatusCheckedOut,
				{model.StatusDepositPaid, ActionCancel}:        model.StatusCancelled,
				{model.StatusCheckedOut, ActionReturn}:         model.StatusReturned,
			},
		},
		initial: map[model.Kind]model.Status{
			model.KindAppointment: model.StatusPending,
			model.KindRental:      model.StatusPendingDeposit,
		},
	}
}

// Initial returns the status a new reservation of kind starts in.
func (f *FSM) Initial(kind model.Kind) model.Status {
	return f.initial[kind]
}

// Next returns the status reached by applying action in from.
func (f *FSM) Next(kind model.Kind, from model.Status, action Action) (model.Status, error) {
	next, ok := f.tables[kind][transition{from: from, action: action}]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a %s %s", ErrIllegalTransition, action, from, kind)
	}
	return next, nil
}

// CanTransition checks if action is allowed from the given status.
func (f *FSM) CanTransition(kind model.Kind, from model.Status, action Action) bool {
	_, err := f.Next(kind, from, action)
	return err == nil
}

// Actions lists the actions allowed from status, in a stable order.
func (f *FSM) Actions(kind model.Kind, from model.Status) []Action {
	var out []Action
	for _, a := range []Action{ActionConfirm, ActionComplete, ActionPayDeposit, ActionCheckOut, ActionReturn, ActionCancel} {
		if f.CanTransition(kind, from, a) {
			out = append(out, a)
		}
	}
	return out
}

// Reschedulable reports whether the reservation's times and quantity can still
// change. Only statuses from which the reservation can still be cancelled
// qualify.
func (f *FSM) Reschedulable(kind model.Kind, status model.Status) bool {
	return f.CanTransition(kind, status, ActionCancel)
}
