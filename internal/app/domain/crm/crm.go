// Package crm holds the business-entity models the automation engine reads
// and mutates. The full CRUD surface for these entities lives outside the
// engine; these are the shapes the action handlers and trigger events need.
package crm

import "time"

// Client is the primary business entity workflows run against.
type Client struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Status     string    `json:"status"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FullName joins the client's name parts for template rendering.
func (c Client) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Task is a unit of work created by workflows or operators.
type Task struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"clientId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Note is a free-form annotation on a client.
type Note struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Communication channels.
const (
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
)

// Communication is a queued outbound message. The engine only enqueues;
// delivery providers drain the queue elsewhere.
type Communication struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId,omitempty"`
	Channel   string    `json:"channel"`
	To        string    `json:"to"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommunicationQueued is the status of a communication awaiting delivery.
const CommunicationQueued = "QUEUED"

// Notification is an in-app message for a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// DocumentRequest asks a client to provide a document.
type DocumentRequest struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	DocumentType string    `json:"documentType"`
	Message      string    `json:"message,omitempty"`
	Fulfilled    bool      `json:"fulfilled"`
	CreatedAt    time.Time `json:"createdAt"`
}
