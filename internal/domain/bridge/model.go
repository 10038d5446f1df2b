package bridge

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Source метка происхождения документов
	Source = "avimark"

	// StoreAtomicWriteLimit максимальное число операций в одной атомарной записи хранилища
	StoreAtomicWriteLimit = 500
	// DefaultWriteCeiling лимит батча с запасом в 10 операций
	DefaultWriteCeiling = 490

	dateLayout = "2006-01-02"
)

// Envelope общие поля всех синхронизируемых сущностей
type Envelope struct {
	ExternalID   string     `json:"externalId"`
	Deleted      bool       `json:"deleted"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	Source       string     `json:"source,omitempty"`
}

func (e Envelope) Key() string {
	return e.ExternalID
}

// IsDeleted запись помечена удаленной в исходной таблице
func (e Envelope) IsDeleted() bool {
	return e.Deleted
}

func (e Envelope) validate() error {
	if strings.TrimSpace(e.ExternalID) == "" {
		return fmt.Errorf("%w: externalId is required", ErrInvalidPayload)
	}
	return nil
}

// Entity вариант синхронизируемой записи
type Entity interface {
	Kind() Kind
	Key() string
	IsDeleted() bool
	Validate() error
	// Fields вычисляемые поля документа, которые накладываются поверх присланных
	Fields(now time.Time) map[string]any
}

type Patient struct {
	Envelope
	Name      string `json:"name"`
	Species   string `json:"species,omitempty"`
	Breed     string `json:"breed,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
	OwnerID   string `json:"ownerId,omitempty"`
	Status    string `json:"status,omitempty"`
}

func (p *Patient) Kind() Kind { return KindPatient }

func (p *Patient) Validate() error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.BirthDate != "" {
		if _, err := time.Parse(dateLayout, p.BirthDate); err != nil {
			return fmt.Errorf("%w: patient %s: birthDate %q is not YYYY-MM-DD", ErrInvalidPayload, p.ExternalID, p.BirthDate)
		}
	}
	return nil
}

func (p *Patient) Fields(now time.Time) map[string]any {
	years, months := age(p.BirthDate, now)

	status := p.Status
	if status == "" {
		status = "Active"
	}

	return map[string]any{
		"id":         p.ExternalID,
		"owner":      "Client #" + p.OwnerID,
		"age":        years,
		"age_months": months,
		"status":     status,
		"image":      "",
	}
}

// age полные годы и оставшиеся месяцы от даты рождения до now
func age(birthDate string, now time.Time) (int, int) {
	if birthDate == "" {
		return 0, 0
	}
	birth, err := time.Parse(dateLayout, birthDate)
	if err != nil {
		return 0, 0
	}
	months := (now.Year()-birth.Year())*12 + int(now.Month()) - int(birth.Month())
	if months < 0 {
		months = 0
	}
	return months / 12, months % 12
}

type Client struct {
	Envelope
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (c *Client) Kind() Kind { return KindClient }

func (c *Client) Validate() error {
	return c.validate()
}

func (c *Client) Fields(_ time.Time) map[string]any {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		name = "Client #" + c.ExternalID
	}
	return map[string]any{
		"id":          c.ExternalID,
		"displayName": name,
	}
}

type CalendarEvent struct {
	Envelope
	PatientID string `json:"patientId,omitempty"`
	Start     string `json:"start"`
	Title     string `json:"title,omitempty"`
	Note      string `json:"note,omitempty"`
	Status    string `json:"status,omitempty"`
}

func (e *CalendarEvent) Kind() Kind { return KindCalendarEvent }

func (e *CalendarEvent) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.Deleted && e.Start == "" {
		return nil
	}
	if _, err := parseStart(e.Start); err != nil {
		return fmt.Errorf("%w: event %s: start %q is not an RFC 3339 timestamp", ErrInvalidPayload, e.ExternalID, e.Start)
	}
	return nil
}

func (e *CalendarEvent) Fields(_ time.Time) map[string]any {
	note := e.Title
	if note == "" {
		note = e.Note
	}
	if note == "" {
		note = "Synced Appointment"
	}

	status := e.Status
	if status == "" {
		status = "scheduled"
	}

	fields := map[string]any{
		"id":             e.ExternalID,
		"patientName":    "Patient #" + e.PatientID,
		"classification": "Consultation",
		"note":           note,
		"vector":         "clinic",
		"status":         status,
	}

	if start, err := parseStart(e.Start); err == nil {
		start = start.UTC()
		fields["date"] = start.Format(dateLayout)
		fields["time"] = start.Format("15:04")
		fields["start"] = start.Format(time.RFC3339)
	}

	return fields
}

func parseStart(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// Document запись облачного хранилища, ключ (Collection, ID)
type Document struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// BatchResult итог приема одного батча
type BatchResult struct {
	Count     int `json:"count"`
	Remaining int `json:"remaining"`
}
