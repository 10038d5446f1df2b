package connector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/infrastructure/dbf"
)

var errMissingKey = errors.New("запись без идентификатора")

// Table описание одной таблицы AVImark и ее отображения в сущность моста
type Table struct {
	Kind bridge.Kind
	File string
	Map  func(rec *dbf.Record) (bridge.Entity, error)
}

// Tables синхронизируемые таблицы в порядке обработки
var Tables = []Table{
	{Kind: bridge.KindPatient, File: "Patient.dbf", Map: mapPatient},
	{Kind: bridge.KindClient, File: "Client.dbf", Map: mapClient},
	{Kind: bridge.KindCalendarEvent, File: "Schedule.dbf", Map: mapEvent},
}

func envelope(rec *dbf.Record, idField string) (bridge.Envelope, error) {
	id := strings.TrimSpace(rec.String(idField))
	if id == "" {
		return bridge.Envelope{}, fmt.Errorf("%w: запись %d, поле %s", errMissingKey, rec.Index, idField)
	}
	return bridge.Envelope{ExternalID: id, Deleted: rec.Deleted}, nil
}

func mapPatient(rec *dbf.Record) (bridge.Entity, error) {
	env, err := envelope(rec, "PATIENT_ID")
	if err != nil {
		return nil, err
	}
	p := &bridge.Patient{
		Envelope:  env,
		Name:      rec.String("NAME"),
		Species:   rec.String("SPECIES"),
		Breed:     rec.String("BREED"),
		BirthDate: dateString(rec, "BIRTHDATE"),
		OwnerID:   rec.String("CLIENT_ID"),
	}
	return p, p.Validate()
}

func mapClient(rec *dbf.Record) (bridge.Entity, error) {
	env, err := envelope(rec, "CLIENT_ID")
	if err != nil {
		return nil, err
	}
	c := &bridge.Client{
		Envelope:  env,
		FirstName: rec.String("FIRST_NAME"),
		LastName:  rec.String("LAST_NAME"),
		Phone:     rec.String("PHONE"),
		Email:     rec.String("EMAIL"),
	}
	return c, c.Validate()
}

func mapEvent(rec *dbf.Record) (bridge.Entity, error) {
	env, err := envelope(rec, "APPT_ID")
	if err != nil {
		return nil, err
	}

	title := rec.String("NOTE")
	if title == "" {
		title = "Appointment"
	}
	status := rec.String("STATUS")
	if status == "" {
		status = "Scheduled"
	}

	e := &bridge.CalendarEvent{
		Envelope:  env,
		PatientID: rec.String("PATIENT_ID"),
		Start:     startString(rec, "START_TIME"),
		Title:     title,
		Status:    status,
	}
	return e, e.Validate()
}

// dateString поле D отдается как YYYY-MM-DD, символьное поле как есть
func dateString(rec *dbf.Record, field string) string {
	if t, ok := rec.Time(field); ok {
		return t.Format(time.DateOnly)
	}
	return rec.String(field)
}

func startString(rec *dbf.Record, field string) string {
	if t, ok := rec.Time(field); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return rec.String(field)
}

// findTable ищет файл таблицы без учета регистра имени
func findTable(dir, name string) (string, bool) {
	exact := filepath.Join(dir, name)
	if _, err := os.Stat(exact); err == nil {
		return exact, true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), name) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}
