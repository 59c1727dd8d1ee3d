package otrs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"3tcapital/otrs_connector/internal/core/ticket"
)

// otrsTimeLayout is the timestamp format used by OTRS in ticket payloads.
const otrsTimeLayout = "2006-01-02 15:04:05"

// APIError is an error reported by OTRS, either as an Error payload or an HTTP status.
type APIError struct {
	Operation  string
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("otrs %s error: %s (code: %s, status: %d)", e.Operation, e.Message, e.Code, e.StatusCode)
}

// IsAuthFailure reports whether OTRS rejected the session or credentials. An unknown
// session can also come back as InvalidParameter naming the SessionID.
func (e *APIError) IsAuthFailure() bool {
	return strings.HasSuffix(e.Code, ".AuthFail") ||
		(strings.HasSuffix(e.Code, ".InvalidParameter") && strings.Contains(strings.ToLower(e.Message), "sessionid")) ||
		e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden
}

// otrsError is the Error object GenericInterface operations return on failure.
type otrsError struct {
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

func (e *otrsError) toAPIError(operation string, status int) *APIError {
	return &APIError{
		Operation:  operation,
		Code:       e.ErrorCode,
		Message:    e.ErrorMessage,
		StatusCode: status,
	}
}

type errorEnvelope struct {
	Error *otrsError `json:"Error,omitempty"`
}

// flexInt decodes IDs that OTRS sends either as numbers or as strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse id %q: %w", s, err)
		}
		*f = flexInt(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

type otrsDynamicField struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type otrsAttachment struct {
	Content     string  `json:"Content"`
	ContentType string  `json:"ContentType"`
	Filename    string  `json:"Filename"`
	FilesizeRaw flexInt `json:"FilesizeRaw,omitempty"`
}

type otrsArticle struct {
	ArticleID   flexInt          `json:"ArticleID"`
	Subject     string           `json:"Subject"`
	Body        string           `json:"Body"`
	MimeType    string           `json:"MimeType"`
	Charset     string           `json:"Charset"`
	From        string           `json:"From"`
	ContentType string           `json:"ContentType"`
	Attachment  []otrsAttachment `json:"Attachment"`
}

type otrsTicket struct {
	TicketID       flexInt            `json:"TicketID"`
	TicketNumber   string             `json:"TicketNumber"`
	Title          string             `json:"Title"`
	QueueID        flexInt            `json:"QueueID"`
	Queue          string             `json:"Queue"`
	StateID        flexInt            `json:"StateID"`
	State          string             `json:"State"`
	PriorityID     flexInt            `json:"PriorityID"`
	Priority       string             `json:"Priority"`
	TypeID         flexInt            `json:"TypeID"`
	Type           string             `json:"Type"`
	ServiceID      flexInt            `json:"ServiceID"`
	Service        string             `json:"Service"`
	SLAID          flexInt            `json:"SLAID"`
	SLA            string             `json:"SLA"`
	CustomerUserID string             `json:"CustomerUserID"`
	Owner          string             `json:"Owner"`
	Created        string             `json:"Created"`
	DynamicField   []otrsDynamicField `json:"DynamicField"`
	Article        []otrsArticle      `json:"Article"`
}

type ticketGetResponse struct {
	Ticket []otrsTicket `json:"Ticket"`
}

type ticketSearchResponse struct {
	TicketID []flexInt `json:"TicketID"`
}

type ticketWriteResponse struct {
	TicketID     flexInt `json:"TicketID"`
	TicketNumber string  `json:"TicketNumber"`
	ArticleID    flexInt `json:"ArticleID"`
}

// toDomain converts an OTRS ticket to the domain model. Empty IDs and names stay nil.
func (t otrsTicket) toDomain() ticket.Ticket {
	out := ticket.Ticket{
		ID:           int64(t.TicketID),
		Number:       t.TicketNumber,
		Title:        t.Title,
		QueueID:      optionalID(t.QueueID),
		Queue:        optionalString(t.Queue),
		StateID:      optionalID(t.StateID),
		State:        optionalString(t.State),
		PriorityID:   optionalID(t.PriorityID),
		Priority:     optionalString(t.Priority),
		TypeID:       optionalID(t.TypeID),
		Type:         optionalString(t.Type),
		ServiceID:    optionalID(t.ServiceID),
		Service:      optionalString(t.Service),
		SLAID:        optionalID(t.SLAID),
		SLA:          optionalString(t.SLA),
		CustomerUser: t.CustomerUserID,
		Owner:        t.Owner,
	}

	if t.Created != "" {
		if created, err := time.ParseInLocation(otrsTimeLayout, t.Created, time.UTC); err == nil {
			out.Created = created
		}
	}

	for _, df := range t.DynamicField {
		out.DynamicField = append(out.DynamicField, ticket.DynamicField{Name: df.Name, Value: df.Value})
	}

	for _, a := range t.Article {
		article := ticket.Article{
			ArticleID:   int64(a.ArticleID),
			Subject:     a.Subject,
			Body:        a.Body,
			MimeType:    a.MimeType,
			Charset:     a.Charset,
			From:        a.From,
			ContentType: a.ContentType,
		}
		for _, att := range a.Attachment {
			article.Attachments = append(article.Attachments, ticket.Attachment{
				Filename:    att.Filename,
				ContentType: att.ContentType,
				Content:     att.Content,
				FilesizeRaw: int64(att.FilesizeRaw),
			})
		}
		out.Articles = append(out.Articles, article)
	}

	return out
}

// ticketPayload builds the Ticket object for TicketCreate/TicketUpdate. Only set fields are
// sent; fields marked with ClearField are sent as empty strings.
func ticketPayload(t ticket.Ticket) map[string]any {
	payload := make(map[string]any)

	if t.Title != "" {
		payload["Title"] = t.Title
	}
	setID(payload, "QueueID", t.QueueID)
	setString(payload, "Queue", t.Queue)
	setID(payload, "StateID", t.StateID)
	setString(payload, "State", t.State)
	setID(payload, "PriorityID", t.PriorityID)
	setString(payload, "Priority", t.Priority)
	setID(payload, "TypeID", t.TypeID)
	setString(payload, "Type", t.Type)
	setID(payload, "ServiceID", t.ServiceID)
	setString(payload, "Service", t.Service)
	setID(payload, "SLAID", t.SLAID)
	setString(payload, "SLA", t.SLA)
	if t.CustomerUser != "" {
		payload["CustomerUser"] = t.CustomerUser
	}
	if t.Owner != "" {
		payload["Owner"] = t.Owner
	}

	for _, name := range t.ClearedFields() {
		payload[name] = ""
	}

	return payload
}

// articlePayload builds the Article object, defaulting what OTRS requires.
func articlePayload(a ticket.Article) map[string]any {
	mimeType := a.MimeType
	if mimeType == "" {
		mimeType = "text/plain"
	}
	charset := a.Charset
	if charset == "" {
		charset = "utf8"
	}

	payload := map[string]any{
		"CommunicationChannel": "Internal",
		"Subject":              a.Subject,
		"Body":                 a.Body,
		"MimeType":             mimeType,
		"Charset":              charset,
	}
	if a.ContentType != "" {
		payload["ContentType"] = a.ContentType
	}
	if a.From != "" {
		payload["From"] = a.From
	}
	return payload
}

func attachmentPayload(attachments []ticket.Attachment) []otrsAttachment {
	out := make([]otrsAttachment, 0, len(attachments))
	for _, att := range attachments {
		out = append(out, otrsAttachment{
			Content:     att.Content,
			ContentType: att.ContentType,
			Filename:    att.Filename,
		})
	}
	return out
}

func dynamicFieldPayload(fields []ticket.DynamicField) []otrsDynamicField {
	out := make([]otrsDynamicField, 0, len(fields))
	for _, df := range fields {
		out = append(out, otrsDynamicField{Name: df.Name, Value: df.Value})
	}
	return out
}

func optionalID(v flexInt) *int64 {
	if v == 0 {
		return nil
	}
	id := int64(v)
	return &id
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func setID(payload map[string]any, key string, v *int64) {
	if v != nil {
		payload[key] = strconv.FormatInt(*v, 10)
	}
}

func setString(payload map[string]any, key string, v *string) {
	if v != nil {
		payload[key] = *v
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
