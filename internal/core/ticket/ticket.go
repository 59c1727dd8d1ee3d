package ticket

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when OTRS has no ticket with the requested ID.
	ErrNotFound = errors.New("ticket not found")
	// ErrValidation is returned when a ticket or article is missing required data.
	ErrValidation = errors.New("validation failed")
)

// Ticket represents an OTRS ticket. Pointer fields distinguish "not set" from "set to empty"
// so an update only sends what the caller touched.
type Ticket struct {
	ID           int64          `json:"ticketId,omitempty"`
	Number       string         `json:"ticketNumber,omitempty"`
	Title        string         `json:"title,omitempty"`
	QueueID      *int64         `json:"queueId,omitempty"`
	Queue        *string        `json:"queue,omitempty"`
	StateID      *int64         `json:"stateId,omitempty"`
	State        *string        `json:"state,omitempty"`
	PriorityID   *int64         `json:"priorityId,omitempty"`
	Priority     *string        `json:"priority,omitempty"`
	TypeID       *int64         `json:"typeId,omitempty"`
	Type         *string        `json:"type,omitempty"`
	ServiceID    *int64         `json:"serviceId,omitempty"`
	Service      *string        `json:"service,omitempty"`
	SLAID        *int64         `json:"slaId,omitempty"`
	SLA          *string        `json:"sla,omitempty"`
	CustomerUser string         `json:"customerUser,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	Created      time.Time      `json:"created,omitempty"`
	DynamicField []DynamicField `json:"dynamicFields,omitempty"`
	Articles     []Article      `json:"articles,omitempty"`

	// cleared lists fields explicitly reset with ClearField.
	cleared map[string]struct{}
}

// DynamicField is a custom field attached to a ticket.
type DynamicField struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Article is a message attached to a ticket.
type Article struct {
	ArticleID   int64        `json:"articleId,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	MimeType    string       `json:"mimeType,omitempty"`
	Charset     string       `json:"charset,omitempty"`
	From        string       `json:"from,omitempty"`
	ContentType string       `json:"contentType,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file carried by an article. Content is base64 encoded.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
	FilesizeRaw int64  `json:"filesizeRaw,omitempty"`
}

// SearchQuery holds the TicketSearch filters supported by the connector.
type SearchQuery struct {
	TicketIDs         []int64  `json:"ticketIds,omitempty"`
	TicketNumber      string   `json:"ticketNumber,omitempty"`
	Title             string   `json:"title,omitempty"`
	QueueIDs          []int64  `json:"queueIds,omitempty"`
	StateIDs          []int64  `json:"stateIds,omitempty"`
	CustomerUserLogin string   `json:"customerUserLogin,omitempty"`
	States            []string `json:"states,omitempty"`
	Limit             int      `json:"limit,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (q SearchQuery) IsEmpty() bool {
	return len(q.TicketIDs) == 0 && q.TicketNumber == "" && q.Title == "" &&
		len(q.QueueIDs) == 0 && len(q.StateIDs) == 0 && q.CustomerUserLogin == "" && len(q.States) == 0
}

// GetOptions controls how much data TicketGet returns.
type GetOptions struct {
	AllArticles   bool
	Attachments   bool
	DynamicFields bool
}

// CreateResult is returned by a successful TicketCreate.
type CreateResult struct {
	TicketID     int64  `json:"ticketId"`
	TicketNumber string `json:"ticketNumber"`
	ArticleID    int64  `json:"articleId,omitempty"`
}

// UpdateResult is returned by a successful TicketUpdate.
type UpdateResult struct {
	TicketID     int64  `json:"ticketId"`
	TicketNumber string `json:"ticketNumber"`
	ArticleID    int64  `json:"articleId,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// SetDynamicField sets or replaces the named dynamic field.
func (t *Ticket) SetDynamicField(name string, value any) {
	for i := range t.DynamicField {
		if t.DynamicField[i].Name == name {
			t.DynamicField[i].Value = value
			return
		}
	}
	t.DynamicField = append(t.DynamicField, DynamicField{Name: name, Value: value})
}

// DynamicFieldValue returns the value of the named dynamic field.
func (t *Ticket) DynamicFieldValue(name string) (any, bool) {
	for _, df := range t.DynamicField {
		if df.Name == name {
			return df.Value, true
		}
	}
	return nil, false
}

// ClearField marks a field to be sent as empty on update, e.g. to drop a ticket's Service.
// Supported names: Service, ServiceID, SLA, SLAID, Priority, PriorityID, Type, TypeID.
func (t *Ticket) ClearField(name string) error {
	switch name {
	case "Service":
		t.Service = nil
	case "ServiceID":
		t.ServiceID = nil
	case "SLA":
		t.SLA = nil
	case "SLAID":
		t.SLAID = nil
	case "Priority":
		t.Priority = nil
	case "PriorityID":
		t.PriorityID = nil
	case "Type":
		t.Type = nil
	case "TypeID":
		t.TypeID = nil
	default:
		return fmt.Errorf("%w: field %q cannot be cleared", ErrValidation, name)
	}
	if t.cleared == nil {
		t.cleared = make(map[string]struct{})
	}
	t.cleared[name] = struct{}{}
	return nil
}

// ClearedFields returns the fields marked with ClearField.
func (t *Ticket) ClearedFields() []string {
	fields := make([]string, 0, len(t.cleared))
	for name := range t.cleared {
		fields = append(fields, name)
	}
	return fields
}

// ValidateForCreate checks the fields OTRS requires to open a ticket.
func (t Ticket) ValidateForCreate() error {
	var missing []string
	if strings.TrimSpace(t.Title) == "" {
		missing = append(missing, "title")
	}
	if t.QueueID == nil && t.Queue == nil {
		missing = append(missing, "queue or queueId")
	}
	if t.StateID == nil && t.State == nil {
		missing = append(missing, "state or stateId")
	}
	if t.PriorityID == nil && t.Priority == nil {
		missing = append(missing, "priority or priorityId")
	}
	if strings.TrimSpace(t.CustomerUser) == "" {
		missing = append(missing, "customerUser")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks the fields OTRS requires to add an article.
func (a Article) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(a.Body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: article missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
