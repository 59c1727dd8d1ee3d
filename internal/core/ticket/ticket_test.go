package ticket

import (
	"errors"
	"sort"
	"strings"
	"testing"
)

func validTicket() Ticket {
	return Ticket{
		Title:        "Suspicious login",
		QueueID:      Int64(3),
		StateID:      Int64(1),
		PriorityID:   Int64(3),
		CustomerUser: "soc@example.com",
	}
}

func TestTicket_ValidateForCreate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Ticket)
		expectedErr string
	}{
		{
			name:   "valid ticket",
			mutate: func(*Ticket) {},
		},
		{
			name:   "queue by name",
			mutate: func(tk *Ticket) { tk.QueueID = nil; tk.Queue = String("Raw") },
		},
		{
			name:        "missing title",
			mutate:      func(tk *Ticket) { tk.Title = "  " },
			expectedErr: "title",
		},
		{
			name:        "missing queue",
			mutate:      func(tk *Ticket) { tk.QueueID = nil },
			expectedErr: "queue or queueId",
		},
		{
			name:        "missing state and priority",
			mutate:      func(tk *Ticket) { tk.StateID = nil; tk.PriorityID = nil },
			expectedErr: "state or stateId, priority or priorityId",
		},
		{
			name:        "missing customer user",
			mutate:      func(tk *Ticket) { tk.CustomerUser = "" },
			expectedErr: "customerUser",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := validTicket()
			tt.mutate(&tk)

			err := tk.ValidateForCreate()
			if tt.expectedErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.expectedErr) {
				t.Errorf("expected error to contain %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

func TestArticle_Validate(t *testing.T) {
	if err := (Article{Subject: "s", Body: "b"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := (Article{}).Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "subject, body") {
		t.Errorf("expected both fields reported, got %q", err.Error())
	}
}

func TestTicket_SetDynamicField(t *testing.T) {
	var tk Ticket
	tk.SetDynamicField("TicketIPAddress", "10.0.0.1")
	tk.SetDynamicField("device", "laptop")
	tk.SetDynamicField("TicketIPAddress", "10.0.0.2")

	if len(tk.DynamicField) != 2 {
		t.Fatalf("expected 2 dynamic fields, got %d", len(tk.DynamicField))
	}

	value, ok := tk.DynamicFieldValue("TicketIPAddress")
	if !ok {
		t.Fatal("expected TicketIPAddress to be set")
	}
	if value != "10.0.0.2" {
		t.Errorf("expected replaced value 10.0.0.2, got %v", value)
	}

	if _, ok := tk.DynamicFieldValue("missing"); ok {
		t.Error("expected missing field to be absent")
	}
}

func TestTicket_ClearField(t *testing.T) {
	tk := validTicket()
	tk.ServiceID = Int64(7)
	tk.SLA = String("gold")

	for _, name := range []string{"ServiceID", "SLA"} {
		if err := tk.ClearField(name); err != nil {
			t.Fatalf("unexpected error clearing %s: %v", name, err)
		}
	}

	if tk.ServiceID != nil || tk.SLA != nil {
		t.Error("expected cleared fields to be nil")
	}

	cleared := tk.ClearedFields()
	sort.Strings(cleared)
	if strings.Join(cleared, ",") != "SLA,ServiceID" {
		t.Errorf("unexpected cleared fields: %v", cleared)
	}

	if err := tk.ClearField("Title"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unsupported field, got %v", err)
	}
}

func TestSearchQuery_IsEmpty(t *testing.T) {
	if !(SearchQuery{Limit: 10}).IsEmpty() {
		t.Error("expected query with only a limit to be empty")
	}
	if (SearchQuery{TicketIDs: []int64{1}}).IsEmpty() {
		t.Error("expected query with ticket IDs to be non-empty")
	}
}
